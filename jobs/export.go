package jobs

import (
	"github.com/saiteja-velpula/sagepick.core/export"
	"github.com/saiteja-velpula/sagepick.core/job"
	"github.com/saiteja-velpula/sagepick.core/schedule"
)

// DatasetExport wraps the exporter as a job definition. Export duration
// grows with the catalog and is effectively unbounded, so it runs as
// ClassLong: a bigger lock TTL plus background renewal at TTL/2.
func DatasetExport(exporter *export.Exporter, trigger schedule.Trigger) job.Definition {
	return job.Definition{
		Key:     KeyDatasetExport,
		Trigger: trigger,
		Class:   job.ClassLong,
		Body:    exporter.Run,
	}
}
