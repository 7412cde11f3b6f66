package sqlinline

// QEnsureSchema bootstraps the tables used by the service. Every statement is
// idempotent.
const QEnsureSchema = `--sql d42ba7dc-a46c-44f8-bfc7-deefafe738a2
create table if not exists users (
    id text primary key,
    email text,
    tier text not null default 'FREE' check (tier in ('FREE', 'BASIC', 'PRO', 'UNLIMITED')),
    images_generated integer not null default 0 check (images_generated >= 0),
    images_limit integer not null default 10,
    ghibli_images_generated integer not null default 0 check (ghibli_images_generated >= 0),
    ghibli_images_limit integer not null default 5,
    last_refresh timestamptz not null default now(),
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);

create table if not exists generated_images (
    id uuid primary key default gen_random_uuid(),
    user_id text not null references users (id) on delete cascade,
    image_url text not null,
    prompt text not null,
    style text not null,
    aspect_ratio text not null,
    storage_key text,
    created_at timestamptz not null default now()
);

create index if not exists generated_images_user_created_idx
    on generated_images (user_id, created_at desc);

create table if not exists provider_keys (
    provider text primary key,
    api_key text not null,
    metadata jsonb not null default '{}'::jsonb,
    rotated_at timestamptz not null default now(),
    revoked_at timestamptz
);
`
