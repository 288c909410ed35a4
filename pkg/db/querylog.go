package db

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/creatorvault-backend/pkg/logger"
)

// queryWriter forwards GORM's slow query and error lines to the service
// logger as warnings.
type queryWriter struct {
	logg *logger.Logger
}

func (w queryWriter) Printf(format string, args ...any) {
	w.logg.Warn(context.Background(), fmt.Sprintf(format, args...))
}

// queryLogger reports slow queries and errors other than record-not-found.
// Without a service logger or a threshold GORM stays silent.
func queryLogger(logg *logger.Logger, slow time.Duration) gormlogger.Interface {
	if logg == nil || slow <= 0 {
		return gormlogger.New(log.New(io.Discard, "", 0), gormlogger.Config{LogLevel: gormlogger.Silent})
	}
	return gormlogger.New(queryWriter{logg: logg}, gormlogger.Config{
		SlowThreshold:             slow,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		ParameterizedQueries:      true,
	})
}
