package jobs

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCatalogRefresh invalidates and re-warms the catalog cache.
	TaskCatalogRefresh = "catalog:refresh"
)
