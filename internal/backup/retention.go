package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Policy is how many snapshots to keep in each age tier. Snapshots older
// than a year are always removed.
type Policy struct {
	Hourly  int // younger than 24h
	Daily   int // 1 to 7 days
	Weekly  int // 7 to 30 days
	Monthly int // 30 to 365 days
}

// DefaultPolicy keeps a day of hourlies, a week of dailies, a month of
// weeklies and a year of monthlies.
func DefaultPolicy() Policy {
	return Policy{Hourly: 24, Daily: 7, Weekly: 4, Monthly: 12}
}

// List returns the snapshots in dir, newest first. Files not named by
// Snapshot are ignored.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("backup: read %s: %w", dir, err)
	}

	var out []Info
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		ts, err := time.Parse(timeLayout, strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix))
		if err != nil {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, Info{Path: filepath.Join(dir, name), Timestamp: ts, Size: fi.Size()})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// Prune deletes the snapshots in dir that policy does not keep, as of now,
// and returns the removed paths.
func Prune(dir string, policy Policy, now time.Time) ([]string, error) {
	snapshots, err := List(dir)
	if err != nil {
		return nil, err
	}

	var (
		tiers    [4][]Info
		toDelete []string
	)
	for _, s := range snapshots {
		switch age := now.Sub(s.Timestamp); {
		case age < 24*time.Hour:
			tiers[0] = append(tiers[0], s)
		case age < 7*24*time.Hour:
			tiers[1] = append(tiers[1], s)
		case age < 30*24*time.Hour:
			tiers[2] = append(tiers[2], s)
		case age < 365*24*time.Hour:
			tiers[3] = append(tiers[3], s)
		default:
			toDelete = append(toDelete, s.Path)
		}
	}

	for i, keep := range []int{policy.Hourly, policy.Daily, policy.Weekly, policy.Monthly} {
		keep = max(keep, 0)
		if len(tiers[i]) > keep {
			for _, s := range tiers[i][keep:] {
				toDelete = append(toDelete, s.Path)
			}
		}
	}

	var (
		removed []string
		errs    []error
	)
	for _, path := range toDelete {
		if err := os.Remove(path); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, path)
	}
	sort.Strings(removed)
	return removed, errors.Join(errs...)
}
