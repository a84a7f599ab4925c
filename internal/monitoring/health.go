package monitoring

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ProbeStatus encodes the outcome of a health probe.
type ProbeStatus string

const (
	StatusUp   ProbeStatus = "up"
	StatusDown ProbeStatus = "down"
)

// ProbeResult captures a single dependency check outcome.
type ProbeResult struct {
	Component string        `json:"component"`
	Status    ProbeStatus   `json:"status"`
	Details   string        `json:"details,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// HealthReport aggregates probe results.
type HealthReport struct {
	Success bool          `json:"success"`
	Status  ProbeStatus   `json:"status"`
	Checks  []ProbeResult `json:"checks"`
}

// Check encapsulates a single dependency probe.
type Check struct {
	Name string
	Run  func(ctx context.Context) ProbeResult
}

// DatabaseCheck probes the grant store's database connection.
func DatabaseCheck(db *gorm.DB) Check {
	return Check{
		Name: "database",
		Run: func(ctx context.Context) ProbeResult {
			start := time.Now()
			result := ProbeResult{Component: "database", Status: StatusUp}

			sqlDB, err := db.DB()
			if err == nil {
				err = sqlDB.PingContext(ctx)
			}
			if err != nil {
				result.Status = StatusDown
				result.Details = err.Error()
			}

			result.Duration = time.Since(start)
			return result
		},
	}
}

// HealthHandler evaluates the supplied checks and reports the aggregate state.
// A failing probe yields 503 so load balancers stop routing to the instance.
func HealthHandler(checks ...Check) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		report := HealthReport{Success: true, Status: StatusUp}
		for _, check := range checks {
			if check.Run == nil {
				continue
			}
			result := check.Run(ctx)
			report.Checks = append(report.Checks, result)
			if result.Status != StatusUp {
				report.Success = false
				report.Status = StatusDown
			}
		}

		status := http.StatusOK
		if !report.Success {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, report)
	}
}
