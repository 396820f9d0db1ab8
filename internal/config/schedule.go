package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"example.com/attendance/internal/domain"
)

// scheduleFile is the on-disk YAML shape of a workday schedule:
//
//	start_time: "08:00"
//	grace_period_minutes: 15
//	workdays: [1, 2, 3, 4, 5]
type scheduleFile struct {
	StartTime          string `yaml:"start_time"`
	GracePeriodMinutes *int   `yaml:"grace_period_minutes"`
	Workdays           []int  `yaml:"workdays"`
}

// ParseSchedule decodes a YAML schedule. Omitted fields keep their defaults.
func ParseSchedule(data []byte) (domain.ScheduleConfig, error) {
	cfg := domain.DefaultSchedule()

	var raw scheduleFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return cfg, fmt.Errorf("decode schedule: %w", err)
	}
	if raw.StartTime != "" {
		start, err := domain.ParseClockTime(raw.StartTime)
		if err != nil {
			return cfg, err
		}
		cfg.StartTime = start
	}
	if raw.GracePeriodMinutes != nil {
		cfg.GracePeriodMinutes = *raw.GracePeriodMinutes
	}
	if raw.Workdays != nil {
		days, err := domain.ParseWeekdays(raw.Workdays)
		if err != nil {
			return cfg, err
		}
		cfg.Workdays = days
	}
	if err := cfg.Validate(); err != nil {
		return domain.DefaultSchedule(), err
	}
	return cfg, nil
}

// LoadSchedule resolves the workday schedule from the SCHEDULE_CONFIG file and the
// SCHEDULE_* overrides. An unreadable or invalid source is logged and ignored, so the
// result is always usable.
func LoadSchedule(cfg Config, logger *log.Logger) domain.ScheduleConfig {
	if logger == nil {
		logger = log.New(log.Writer(), "[config] ", log.LstdFlags|log.Lshortfile)
	}

	schedule := domain.DefaultSchedule()
	if cfg.ScheduleConfigPath != "" {
		data, err := os.ReadFile(cfg.ScheduleConfigPath)
		if err != nil {
			logger.Printf("schedule file %s unavailable, using defaults: %v", cfg.ScheduleConfigPath, err)
		} else if parsed, err := ParseSchedule(data); err != nil {
			logger.Printf("schedule file %s invalid, using defaults: %v", cfg.ScheduleConfigPath, err)
		} else {
			schedule = parsed
		}
	}

	if value := getEnv("SCHEDULE_START_TIME", ""); value != "" {
		if start, err := domain.ParseClockTime(value); err == nil {
			schedule.StartTime = start
		} else {
			logger.Printf("ignoring SCHEDULE_START_TIME: %v", err)
		}
	}
	if value := getEnv("SCHEDULE_GRACE_MINUTES", ""); value != "" {
		if grace, err := strconv.Atoi(value); err == nil && grace >= 0 {
			schedule.GracePeriodMinutes = grace
		} else {
			logger.Printf("ignoring SCHEDULE_GRACE_MINUTES=%q", value)
		}
	}
	if value := getEnv("SCHEDULE_WORKDAYS", ""); value != "" {
		if days, err := parseWeekdayList(value); err == nil {
			schedule.Workdays = days
		} else {
			logger.Printf("ignoring SCHEDULE_WORKDAYS: %v", err)
		}
	}
	return schedule
}

func parseWeekdayList(value string) (domain.WeekdaySet, error) {
	parts := splitAndTrim(value)
	indices := make([]int, 0, len(parts))
	for _, part := range parts {
		idx, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return 0, fmt.Errorf("invalid weekday %q", part)
		}
		indices = append(indices, idx)
	}
	return domain.ParseWeekdays(indices)
}
