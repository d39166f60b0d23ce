package db

import "gorm.io/gorm"

// EnsurePostGIS enables the postgis extension used by the boundary queries.
func EnsurePostGIS(d *gorm.DB) error {
	return d.Exec(`CREATE EXTENSION IF NOT EXISTS postgis`).Error
}
