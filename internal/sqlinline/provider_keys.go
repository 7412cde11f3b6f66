package sqlinline

// QSelectProviderKey reads the active key for a provider ($1).
const QSelectProviderKey = `--sql 3c1f9e0a-5b2d-4c6e-9a71-0d8e4f2b7c13
select api_key
from provider_keys
where provider = $1::text
  and revoked_at is null
limit 1;
`

// QUpsertProviderKey stores a rotated key. $3 is merged into the existing
// metadata.
const QUpsertProviderKey = `--sql 9e47b2d8-16a3-4f0c-b85e-7c2a1d93f460
insert into provider_keys (provider, api_key, metadata, rotated_at)
values ($1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb), now())
on conflict (provider) do update set
    api_key = excluded.api_key,
    metadata = provider_keys.metadata || excluded.metadata,
    rotated_at = now(),
    revoked_at = null;
`

// QRevokeProviderKey disables the stored key without deleting its history.
const QRevokeProviderKey = `--sql 5a0d7c64-e2b9-4813-a6f5-2b9c8e17d0fa
update provider_keys
set revoked_at = now()
where provider = $1::text
  and revoked_at is null;
`
