package util

import (
	"time"

	"github.com/influxdata/influxdb-client-go/api/write"
)

func TimeOperationMicroseconds(op func()) int64 {
	start := time.Now()
	op()
	return time.Since(start).Microseconds()
}

// NopWriteAPI discards every point. It is the default metrics sink when no
// InfluxDB server is configured.
type NopWriteAPI struct{}

func (NopWriteAPI) WriteRecord(line string) {}
func (NopWriteAPI) WritePoint(point *write.Point) {}
func (NopWriteAPI) Flush() {}
func (NopWriteAPI) Close() {}
func (NopWriteAPI) Errors() <-chan error { return nil }
