package audit

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	mw "github.com/hoshizuki/campfire/server/middleware"
)

// Middleware records every mutating API call after the handler runs. Reads
// are not audited. The write itself is async so the request path never waits
// on the audit table.
func Middleware(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == "GET" || c.Request.Method == "HEAD" || c.Request.Method == "OPTIONS" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		entry := Entry{
			TraceID:    mw.GetTraceID(c),
			Action:     c.Request.Method + " " + c.FullPath(),
			Response:   gin.H{"status": c.Writer.Status()},
			IP:         c.ClientIP(),
			DurationMs: int(time.Since(start).Milliseconds()),
		}
		if id := mw.GetAccountID(c); id != 0 {
			entry.AccountID = &id
		}
		if raw := c.Param("id"); raw != "" {
			if libID, err := strconv.ParseInt(raw, 10, 64); err == nil {
				entry.LibraryID = &libID
			}
		}
		if len(c.Errors) > 0 {
			entry.Error = c.Errors.String()
		}
		svc.Log(entry)
	}
}
