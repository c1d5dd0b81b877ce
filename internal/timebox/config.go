package timebox

import (
	"os"
	"strings"
	"time"

	"github.com/lexvoice/casecall-backend/internal/utils"
)

type Config struct {
	Address   string
	Namespace string
	TaskQueue string

	// MaxCallDuration is the hard wall-clock limit on a call.
	MaxCallDuration time.Duration
	// WarningLead is how long before the limit the warning fires.
	WarningLead time.Duration
}

func LoadConfig() Config {
	maxMinutes := utils.GetEnvAsInt("TIMEBOX_MAX_CALL_MINUTES", 30, nil)
	warningSeconds := utils.GetEnvAsInt("TIMEBOX_WARNING_LEAD_SECONDS", 120, nil)
	return Config{
		Address:   strings.TrimSpace(os.Getenv("TEMPORAL_ADDRESS")),
		Namespace: stringsOr(strings.TrimSpace(os.Getenv("TEMPORAL_NAMESPACE")), "casecall"),
		TaskQueue: stringsOr(strings.TrimSpace(os.Getenv("TEMPORAL_TASK_QUEUE")), "casecall-timebox"),

		MaxCallDuration: time.Duration(maxMinutes) * time.Minute,
		WarningLead:     time.Duration(warningSeconds) * time.Second,
	}
}

func stringsOr(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
