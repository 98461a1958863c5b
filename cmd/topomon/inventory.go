package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/user/topomon/internal/inventory"
	"github.com/user/topomon/internal/model"
	"github.com/user/topomon/internal/storage"
)

// withInventory opens the database for the duration of fn.
func withInventory(fn func(m *inventory.Manager, db *storage.DB) error) error {
	db, err := storage.Initialize(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()
	return fn(inventory.NewManager(db), db)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// parseOptionalID accepts an id or "none".
func parseOptionalID(s string) (*int64, error) {
	if strings.EqualFold(s, "none") {
		return nil, nil
	}
	id, err := parseID(s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := parseID(a)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseThreshold reads "warning,critical[,recovery_buffer]". The buffer
// defaults to the metric's built-in value.
func parseThreshold(metric, s string) (*model.Threshold, error) {
	parts := strings.Split(s, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return nil, fmt.Errorf("%s threshold %q: want warning,critical[,buffer]", metric, s)
	}
	th := model.DefaultThresholds[metric]
	dst := []*float64{&th.Warning, &th.Critical, &th.RecoveryBuffer}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%s threshold %q: %w", metric, s, err)
		}
		*dst[i] = v
	}
	return &th, nil
}

func formatID(id *int64) string {
	if id == nil {
		return "-"
	}
	return strconv.FormatInt(*id, 10)
}

func formatThreshold(th *model.Threshold) string {
	if th == nil {
		return "default"
	}
	return fmt.Sprintf("warn %.0f%% / crit %.0f%% / buffer %.0f", th.Warning, th.Critical, th.RecoveryBuffer)
}
