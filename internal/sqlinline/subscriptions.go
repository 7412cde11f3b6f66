package sqlinline

// Counters read as zero once last_refresh falls before the current UTC day;
// the next recorded image persists the reset.

// QEnsureUserSubscription creates a FREE row on first sight. The no-op update
// on conflict makes the statement return the row even when a concurrent
// request inserted it first.
const QEnsureUserSubscription = `--sql 894879b1-41ed-450c-805b-57ab5ebdba15
with upserted as (
    insert into users (id, tier, images_generated, images_limit, ghibli_images_generated, ghibli_images_limit, last_refresh, created_at, updated_at)
    values ($1::text, 'FREE', 0, $2::int, 0, $3::int, now(), now(), now())
    on conflict (id) do update set updated_at = users.updated_at
    returning id, tier, images_generated, images_limit, ghibli_images_generated, ghibli_images_limit, last_refresh
)
select
    id,
    tier,
    case when last_refresh < date_trunc('day', now() at time zone 'UTC') at time zone 'UTC' then 0 else images_generated end as images_generated,
    images_limit,
    case when last_refresh < date_trunc('day', now() at time zone 'UTC') at time zone 'UTC' then 0 else ghibli_images_generated end as ghibli_images_generated,
    ghibli_images_limit,
    last_refresh
from upserted;
`

const QUpsertUserTier = `--sql 13153f4b-ae83-4522-8135-a77ba4fcb0b8
insert into users (id, tier, images_generated, images_limit, ghibli_images_generated, ghibli_images_limit, last_refresh, created_at, updated_at)
values ($1::text, $2::text, 0, $3::int, 0, $4::int, now(), now(), now())
on conflict (id) do update set
    tier = excluded.tier,
    images_limit = excluded.images_limit,
    ghibli_images_limit = excluded.ghibli_images_limit,
    images_generated = case when $5::boolean then 0 else users.images_generated end,
    ghibli_images_generated = case when $5::boolean then 0 else users.ghibli_images_generated end,
    last_refresh = case when $5::boolean then now() else users.last_refresh end,
    updated_at = now()
returning id, tier, images_generated, images_limit, ghibli_images_generated, ghibli_images_limit, last_refresh;
`
