package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/sentinel/internal/middleware"
	"github.com/mx-space/sentinel/internal/pkg/cron"
	"github.com/mx-space/sentinel/internal/pkg/jwt"
	"github.com/mx-space/sentinel/internal/pkg/response"
	"gorm.io/gorm"
)

const pingTimeout = 2 * time.Second

// Pinger is a dependency that can report whether it is reachable.
type Pinger func(ctx context.Context) error

// BreakerState reports a circuit breaker's state by name.
type BreakerState interface {
	Name() string
	State() string
}

// Checks are the dependencies reported by /health. The database is
// mandatory; optional ones are only checked when set.
type Checks struct {
	DB       *gorm.DB
	Optional map[string]Pinger
	Breakers []BreakerState
	Sched    *cron.Scheduler
	LogDir   string
	Started  time.Time
}

type logItem struct {
	Size     string `json:"size"`
	Filename string `json:"filename"`
	Index    int    `json:"index"`
	Created  int64  `json:"created"`
}

func RegisterRoutes(rg *gin.RouterGroup, checks Checks, authMW gin.HandlerFunc) {
	rg.GET("/health", func(c *gin.Context) {
		report, ok := checks.probe(c.Request.Context())
		code := http.StatusOK
		status := "ok"
		if !ok {
			code = http.StatusServiceUnavailable
			status = "degraded"
		}
		c.JSON(code, gin.H{"status": status, "dependencies": report})
	})

	admin := rg.Group("/health", authMW, middleware.RequireRole(jwt.RoleAdmin))
	admin.GET("/detail", func(c *gin.Context) {
		report, _ := checks.probe(c.Request.Context())
		breakers := make(map[string]string, len(checks.Breakers))
		for _, b := range checks.Breakers {
			breakers[b.Name()] = b.State()
		}
		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		detail := gin.H{
			"dependencies": report,
			"breakers":     breakers,
			"uptime":       time.Since(checks.Started).Truncate(time.Second).String(),
			"goroutines":   runtime.NumGoroutine(),
			"heapAlloc":    formatByteSize(int64(mem.HeapAlloc)),
			"goVersion":    runtime.Version(),
		}
		if checks.Sched != nil {
			detail["jobs"] = checks.Sched.List()
		}
		response.OK(c, detail)
	})

	logGroup := admin.Group("/log")
	logGroup.GET("/list", func(c *gin.Context) {
		items, err := listLogs(checks.LogDir)
		if err != nil {
			response.InternalError(c, err)
			return
		}
		response.OK(c, items)
	})
	logGroup.GET("", func(c *gin.Context) {
		path, ok := logPath(c, checks.LogDir)
		if !ok {
			return
		}
		data, err := os.ReadFile(path)
		if err != nil {
			response.NotFoundMsg(c, "log file not exists")
			return
		}
		c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
	})
	logGroup.DELETE("", func(c *gin.Context) {
		path, ok := logPath(c, checks.LogDir)
		if !ok {
			return
		}
		if err := os.Remove(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				response.NotFoundMsg(c, "log file not exists")
				return
			}
			response.InternalError(c, err)
			return
		}
		response.NoContent(c)
	})
}

// probe pings every dependency. ok is false when any of them failed.
func (ch Checks) probe(ctx context.Context) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	report := make(map[string]string, len(ch.Optional)+1)
	ok := true
	record := func(name string, err error) {
		if err != nil {
			report[name] = err.Error()
			ok = false
			return
		}
		report[name] = "ok"
	}

	sqlDB, err := ch.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	record("database", err)
	for name, ping := range ch.Optional {
		if ping != nil {
			record(name, ping(ctx))
		}
	}
	return report, ok
}

func listLogs(dir string) ([]logItem, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return []logItem{}, nil
	}
	if err != nil {
		return nil, err
	}
	items := make([]logItem, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".log") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		items = append(items, logItem{
			Size:     formatByteSize(info.Size()),
			Filename: entry.Name(),
			Created:  info.ModTime().UnixMilli(),
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Created > items[j].Created })
	for i := range items {
		items[i].Index = i
	}
	return items, nil
}

func logPath(c *gin.Context, dir string) (string, bool) {
	filename := filepath.Base(strings.TrimSpace(c.Query("filename")))
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		response.UnprocessableEntity(c, "filename must be string")
		return "", false
	}
	return filepath.Join(dir, filename), true
}

func formatByteSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
