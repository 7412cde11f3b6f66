package sqlinline

// QRecordGeneratedImage increments the pool matching $2 (true = specialty)
// and inserts the image in one statement. No row is returned when the pool is
// already exhausted, so concurrent runs cannot overshoot the limit.
const QRecordGeneratedImage = `--sql 9779caa4-4642-459b-a928-e7c62ad186b2
with counted as (
    update users u set
        images_generated = (case when u.last_refresh < date_trunc('day', now() at time zone 'UTC') at time zone 'UTC' then 0 else u.images_generated end)
            + (case when $2::boolean then 0 else 1 end),
        ghibli_images_generated = (case when u.last_refresh < date_trunc('day', now() at time zone 'UTC') at time zone 'UTC' then 0 else u.ghibli_images_generated end)
            + (case when $2::boolean then 1 else 0 end),
        last_refresh = case when u.last_refresh < date_trunc('day', now() at time zone 'UTC') at time zone 'UTC' then now() else u.last_refresh end,
        updated_at = now()
    where u.id = $1::text
      and (
        ($2::boolean and (
            u.ghibli_images_limit < 0
            or (case when u.last_refresh < date_trunc('day', now() at time zone 'UTC') at time zone 'UTC' then 0 else u.ghibli_images_generated end) < u.ghibli_images_limit
        ))
        or (not $2::boolean and (
            u.images_limit < 0
            or (case when u.last_refresh < date_trunc('day', now() at time zone 'UTC') at time zone 'UTC' then 0 else u.images_generated end) < u.images_limit
        ))
      )
    returning u.id
)
insert into generated_images (id, user_id, image_url, prompt, style, aspect_ratio, storage_key, created_at)
select gen_random_uuid(), counted.id, $3::text, $4::text, $5::text, $6::text, nullif($7::text, ''), now()
from counted
returning id::text;
`

const QListUserImages = `--sql 1df99ee0-d410-43f5-8cac-268edbb7d279
select
    id::text,
    user_id,
    image_url,
    prompt,
    style,
    aspect_ratio,
    coalesce(storage_key, '') as storage_key,
    created_at
from generated_images
where user_id = $1::text
order by created_at desc
limit $2::int;
`
