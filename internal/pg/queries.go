package pg

// Probe queries run against the statistics catalogs only, except the
// fix executor which receives its statements pre-built. Percentages are
// cast to float8 so they scan into plain Go floats.

const queryDatabaseInfo = `
SELECT current_database() AS name,
       version() AS version,
       pg_database_size(current_database()) AS size_bytes,
       pg_size_pretty(pg_database_size(current_database())) AS size_pretty`

const queryCacheHitRatio = `
SELECT (sum(heap_blks_hit) / nullif(sum(heap_blks_hit) + sum(heap_blks_read), 0))::float8 AS ratio
FROM pg_statio_user_tables`

const queryIndexHitRatio = `
SELECT (sum(idx_blks_hit) / nullif(sum(idx_blks_hit) + sum(idx_blks_read), 0))::float8 AS ratio
FROM pg_statio_user_indexes`

const queryConnectionStats = `
SELECT count(*) AS total,
       count(*) FILTER (WHERE state = 'active') AS active,
       count(*) FILTER (WHERE state = 'idle') AS idle,
       (SELECT setting::int FROM pg_settings WHERE name = 'max_connections') AS max_connections
FROM pg_stat_activity`

const queryReplicationLag = `
SELECT CASE WHEN pg_is_in_recovery()
            THEN EXTRACT(EPOCH FROM (now() - pg_last_xact_replay_timestamp()))::bigint
            ELSE NULL
       END AS lag_seconds`

const queryLockWaits = `
SELECT count(*) AS waiting
FROM pg_locks
WHERE NOT granted`

const queryVacuumStats = `
SELECT schemaname, relname, n_dead_tup, n_live_tup,
       COALESCE(round(n_dead_tup * 100.0 / nullif(n_live_tup + n_dead_tup, 0), 1), 0)::float8 AS dead_pct,
       last_vacuum, last_autovacuum,
       pg_size_pretty(pg_total_relation_size(relid)) AS table_size
FROM pg_stat_user_tables
WHERE n_dead_tup > 10000
ORDER BY n_dead_tup DESC
LIMIT 10`

const queryTableBloat = `
SELECT schemaname, relname, n_dead_tup, n_live_tup,
       COALESCE(round(n_dead_tup * 100.0 / nullif(n_live_tup + n_dead_tup, 0), 1), 0)::float8 AS dead_pct,
       last_vacuum, last_autovacuum,
       pg_size_pretty(pg_total_relation_size(relid)) AS table_size
FROM pg_stat_user_tables
WHERE n_dead_tup > 1000
ORDER BY n_dead_tup DESC
LIMIT 10`

const queryLongRunning = `
SELECT pid,
       EXTRACT(EPOCH FROM (now() - query_start))::float8 AS duration_seconds,
       state,
       left(query, 100) AS query
FROM pg_stat_activity
WHERE state != 'idle'
  AND query_start < now() - interval '5 minutes'
  AND query NOT ILIKE '%pg_stat_activity%'
ORDER BY query_start`

const queryUnusedIndexes = `
SELECT sui.schemaname, sui.relname, sui.indexrelname,
       pg_size_pretty(pg_relation_size(sui.indexrelid)) AS index_size,
       pg_relation_size(sui.indexrelid) AS index_size_bytes,
       sui.idx_scan
FROM pg_stat_user_indexes sui
JOIN pg_index pi ON sui.indexrelid = pi.indexrelid
WHERE sui.idx_scan = 0
  AND NOT pi.indisprimary
  AND NOT pi.indisunique
ORDER BY pg_relation_size(sui.indexrelid) DESC
LIMIT 20`

const queryStatsReset = `
SELECT stats_reset
FROM pg_stat_database
WHERE datname = current_database()`

const queryMissingPrimaryKeys = `
SELECT n.nspname AS schemaname, c.relname AS tablename
FROM pg_class c
JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE c.relkind = 'r'
  AND n.nspname NOT IN ('pg_catalog', 'information_schema')
  AND NOT EXISTS (
      SELECT 1 FROM pg_constraint con
      WHERE con.conrelid = c.oid AND con.contype = 'p'
  )
ORDER BY n.nspname, c.relname`

const querySlowQueries = `
SELECT left(query, 200) AS query, calls, total_exec_time, mean_exec_time, rows
FROM pg_stat_statements
WHERE calls > 10
ORDER BY mean_exec_time DESC
LIMIT 10`

const queryDuplicateIndexes = `
SELECT schemaname, tablename, array_agg(indexname ORDER BY indexname) AS indexnames
FROM (
    SELECT sui.schemaname, sui.relname AS tablename, sui.indexrelname AS indexname,
           sui.relid::text || ':' || pi.indkey::text AS index_cols
    FROM pg_stat_user_indexes sui
    JOIN pg_index pi ON pi.indexrelid = sui.indexrelid
) grouped
GROUP BY schemaname, tablename, index_cols
HAVING count(*) > 1
ORDER BY schemaname, tablename`

const queryForeignKeysWithoutIndexes = `
SELECT c.conrelid::regclass::text AS table_name,
       c.conname AS constraint_name,
       pg_get_constraintdef(c.oid) AS definition
FROM pg_constraint c
WHERE c.contype = 'f'
  AND NOT EXISTS (
      SELECT 1 FROM pg_index i
      WHERE i.indrelid = c.conrelid
        AND (i.indkey::int2[])[0:array_length(c.conkey, 1) - 1] @> c.conkey::int2[]
  )
ORDER BY 1, 2`

const queryTransactionIDAges = `
SELECT n.nspname || '.' || c.relname AS table_name,
       age(c.relfrozenxid) AS xid_age
FROM pg_class c
JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE c.relkind = 'r'
  AND n.nspname NOT IN ('pg_catalog', 'information_schema')
ORDER BY age(c.relfrozenxid) DESC
LIMIT 10`

const querySecurityChecks = `
SELECT 'public_schema_create' AS check_name,
       CASE WHEN has_schema_privilege('public', 'public', 'CREATE')
            THEN 'WARNING: public schema allows CREATE for all roles'
            ELSE 'OK'
       END AS status
UNION ALL
SELECT 'superuser_count' AS check_name,
       CASE WHEN count(*) > 3
            THEN 'WARNING: ' || count(*) || ' superuser accounts'
            ELSE 'OK (' || count(*) || ' superusers)'
       END AS status
FROM pg_roles
WHERE rolsuper`

const queryTablespaces = `
SELECT spcname, pg_size_pretty(pg_tablespace_size(oid)) AS size
FROM pg_tablespace
ORDER BY pg_tablespace_size(oid) DESC`

const queryTableSizes = `
SELECT schemaname, relname, n_live_tup,
       pg_size_pretty(pg_total_relation_size(relid)) AS total_size,
       pg_size_pretty(pg_relation_size(relid)) AS table_size,
       pg_size_pretty(pg_total_relation_size(relid) - pg_relation_size(relid)) AS index_size
FROM pg_stat_user_tables
ORDER BY pg_total_relation_size(relid) DESC
LIMIT 20`

const querySeqScanCandidates = `
SELECT schemaname, relname, seq_scan, COALESCE(idx_scan, 0) AS idx_scan, n_live_tup,
       pg_size_pretty(pg_relation_size(relid)) AS table_size,
       pg_relation_size(relid) AS size_bytes
FROM pg_stat_user_tables
WHERE seq_scan > 100
  AND n_live_tup > 10000
  AND (COALESCE(idx_scan, 0) = 0 OR seq_scan > COALESCE(idx_scan, 0) * 10)
ORDER BY seq_scan DESC
LIMIT 10`

const queryLargeTables = `
SELECT schemaname, relname,
       pg_total_relation_size(relid) AS total_bytes,
       pg_size_pretty(pg_total_relation_size(relid)) AS total_size,
       n_live_tup
FROM pg_stat_user_tables
WHERE pg_total_relation_size(relid) > 1073741824
ORDER BY pg_total_relation_size(relid) DESC
LIMIT 10`

const queryOutdatedStats = `
SELECT schemaname, relname, n_mod_since_analyze, n_live_tup, last_analyze, last_autoanalyze
FROM pg_stat_user_tables
WHERE n_mod_since_analyze > GREATEST(n_live_tup * 0.1, 1000)
ORDER BY n_mod_since_analyze DESC
LIMIT 20`

const querySharedBuffers = `SELECT current_setting('shared_buffers')`
