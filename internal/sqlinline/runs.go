package sqlinline

// QEnsureFittingRuns creates the outcome ledger when it does not exist yet.
const QEnsureFittingRuns = `--sql 3f1b7c2e-9d4a-4e8b-a6c1-5b2d8e7f0a91
create table if not exists fitting_runs (
    id uuid primary key,
    engine text not null,
    stage text not null,
    failure_kind text not null default '',
    generated_image text not null default '',
    generated_video text not null default '',
    video_requested boolean not null default false,
    image_lenient boolean not null default false,
    video_lenient boolean not null default false,
    product_title text not null default '',
    locale text not null default '',
    created_at timestamptz not null,
    finished_at timestamptz
);
`

const QUpsertFittingRun = `--sql 7c9e2a41-5b8d-4f36-9e0a-2d4c6b8a1f53
insert into fitting_runs (
    id, engine, stage, failure_kind, generated_image, generated_video,
    video_requested, image_lenient, video_lenient, product_title, locale,
    created_at, finished_at
)
values ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
on conflict (id) do update set
    stage = excluded.stage,
    failure_kind = excluded.failure_kind,
    generated_image = excluded.generated_image,
    generated_video = excluded.generated_video,
    image_lenient = excluded.image_lenient,
    video_lenient = excluded.video_lenient,
    finished_at = excluded.finished_at;
`

const QSelectFittingRun = `--sql a2d5e8f1-4c7b-4a90-8e3d-6f1b9c2a7d04
select id::text, engine, stage, failure_kind, generated_image, generated_video,
       video_requested, image_lenient, video_lenient, product_title, locale,
       created_at, finished_at
from fitting_runs
where id = $1::uuid;
`

// QLenientRate reports how many finished runs per engine needed a lenient parse.
const QLenientRate = `--sql e5b81c3d-2a6f-4d97-b0c4-8f3e1a5d9b62
select engine,
       count(*) as total,
       count(*) filter (where image_lenient or video_lenient) as lenient
from fitting_runs
where created_at >= $1
group by engine
order by engine;
`
