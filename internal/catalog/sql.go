package catalog

import (
	_ "embed"
)

const (
	insertClaimSQL = `
INSERT INTO packages (package_id,
                      path,
                      source)
VALUES (?, ?, ?)`

	updateStatusSQL = `
UPDATE packages
SET status      = ?,
    finished_at = CURRENT_TIMESTAMP,
    error       = ?
WHERE package_id = ?
  AND status = 'claimed'`

	selectPackageSQL = `
SELECT 
    package_id, 
    path, 
    source, 
    status, 
    claimed_at, 
    finished_at, 
    error
FROM packages
WHERE 
    package_id = ?`

	selectPackagesSQL = `
SELECT 
    package_id, 
    path, 
    source, 
    status, 
    claimed_at, 
    finished_at, 
    error
FROM packages
ORDER BY claimed_at, package_id`
)

//go:embed schema.sql
var schemaSQL string
