// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/gardener/volume-encryptor/api/v1alpha1"
)

// DefaultFileName returns the name of the report file used when none is configured.
func DefaultFileName(now time.Time) string {
	return fmt.Sprintf("output-%s.json", now.Format("2006-01-02-15-04-05"))
}

// Load reads the volume records from the given report file. A missing or empty file yields no records.
func Load(path string) ([]v1alpha1.VolumeRecord, error) {
	var records []v1alpha1.VolumeRecord
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return records, nil
		}
		return nil, fmt.Errorf("unable to read file %s: %w", path, err)
	}
	if len(contents) == 0 {
		return records, nil
	}
	if err = json.Unmarshal(contents, &records); err != nil {
		return nil, fmt.Errorf("unable to unmarshal file %s: %w", path, err)
	}
	return records, nil
}

// Merge adds the new records to the existing ones. An existing record of the same node and volume is replaced.
func Merge(existing, records []v1alpha1.VolumeRecord) []v1alpha1.VolumeRecord {
	merged := append([]v1alpha1.VolumeRecord(nil), existing...)
	for _, record := range records {
		if i := indexOf(merged, record); i >= 0 {
			merged[i] = record
			continue
		}
		merged = append(merged, record)
	}
	return merged
}

func indexOf(records []v1alpha1.VolumeRecord, record v1alpha1.VolumeRecord) int {
	for i := range records {
		if records[i].Node == record.Node && records[i].VolumeID == record.VolumeID {
			return i
		}
	}
	return -1
}

// Save writes the records to the given report file, replacing its content.
func Save(path string, records []v1alpha1.VolumeRecord) error {
	if records == nil {
		records = []v1alpha1.VolumeRecord{}
	}
	printable, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to marshal volume records: %w", err)
	}
	if err = os.WriteFile(path, printable, 0644); err != nil {
		return fmt.Errorf("unable to write volume records to %s: %w", path, err)
	}
	return nil
}

// Summary aggregates the records of a report.
type Summary struct {
	TotalVolumes                int                               `json:"totalVolumes"`
	VolumesPerRegion            map[string]int                    `json:"volumesPerRegion"`
	TotalUnencryptedVolumes     int                               `json:"totalUnencryptedVolumes"`
	UnencryptedVolumesPerRegion map[string]int                    `json:"unencryptedVolumesPerRegion"`
	VolumesPerState             map[v1alpha1.ReplacementState]int `json:"volumesPerState"`
}

// Summarize counts the volumes of the records per region and per state. Records of skipped nodes carry
// no volume and are not counted.
func Summarize(records []v1alpha1.VolumeRecord) Summary {
	summary := Summary{
		VolumesPerRegion:            make(map[string]int),
		UnencryptedVolumesPerRegion: make(map[string]int),
		VolumesPerState:             make(map[v1alpha1.ReplacementState]int),
	}
	for _, record := range records {
		if record.VolumeID == "" {
			continue
		}
		summary.TotalVolumes++
		summary.VolumesPerRegion[record.Region]++
		summary.VolumesPerState[record.State]++
		if !record.Encrypted {
			summary.TotalUnencryptedVolumes++
			summary.UnencryptedVolumesPerRegion[record.Region]++
		}
	}
	return summary
}

// Print writes the summary as indented JSON.
func (s Summary) Print(w io.Writer) error {
	printable, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to marshal summary: %w", err)
	}
	_, err = fmt.Fprintln(w, string(printable))
	return err
}
