package utils

import "sync"

// gdalMu serializes GDAL dataset access across region workers.
var gdalMu sync.Mutex

func ExecuteWithMutex(fn func()) {
	gdalMu.Lock()
	defer gdalMu.Unlock()
	fn()
}
