// Package models holds the decoded shapes of every frame exchanged with a
// simulation node. All fields are optional on the wire and default to their
// zero value.
package models

// Status is one report pushed over a peer's status channel.
type Status struct {
	Code           int32          `json:"status"`
	Name           string         `json:"name"`
	Connections    []string       `json:"connections"` // neighbor addresses as reported by the node
	WorkStatus     []WorkStatus   `json:"workStatus"`
	MaterialStatus MaterialStatus `json:"materialStatus"`
}

// WorkStatus holds the per-work-type counters of a node since its last report.
type WorkStatus struct {
	WorkType              string `json:"workType"`
	RequestCount          int32  `json:"requestCount"`
	SuccessCount          int32  `json:"successCount"`
	FailureCount          int32  `json:"failureCount"`
	CompletedCount        int32  `json:"completedCount"`
	CompletedFailureCount int32  `json:"completedFailureCount"`
}

// MaterialStatus holds the resource, waste, ligand, hormone and antigen gauges.
type MaterialStatus struct {
	O2           int32 `json:"o2"`
	CO2          int32 `json:"co2"`
	Glucose      int32 `json:"glucose"`
	Vitamin      int32 `json:"vitamin"`
	Creatinine   int32 `json:"creatinine"`
	Growth       int32 `json:"growth"`
	Hunger       int32 `json:"hunger"`
	Asphyxia     int32 `json:"asphyxia"`
	Inflammation int32 `json:"inflammation"`
	GCsf         int32 `json:"gCsf"`
	MCsf         int32 `json:"mCsf"`
	IL3          int32 `json:"il3"`
	IL2          int32 `json:"il2"`
	ViralLoad    int32 `json:"viralLoad"`
	AntibodyLoad int32 `json:"antibodyLoad"`
}

// Clone returns a deep copy so callers can hold a report without sharing slices.
func (s *Status) Clone() *Status {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Connections = append([]string(nil), s.Connections...)
	cp.WorkStatus = append([]WorkStatus(nil), s.WorkStatus...)
	return &cp
}
