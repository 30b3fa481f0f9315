package auth

import "whygo/internal/domain"

// DirectReports returns the roster members whose reportsTo is managerID.
func DirectReports(managerID string, roster []domain.Actor) []domain.Actor {
	var res []domain.Actor
	for _, a := range roster {
		if a.ReportsTo != nil && *a.ReportsTo == managerID {
			res = append(res, a)
		}
	}
	return res
}

// AllReports walks the reporting tree under managerID depth-first. Actors
// already visited are skipped, so a reportsTo cycle terminates.
func AllReports(managerID string, roster []domain.Actor) []domain.Actor {
	visited := map[string]bool{managerID: true}
	var res []domain.Actor
	var walk func(id string)
	walk = func(id string) {
		for _, r := range DirectReports(id, roster) {
			if visited[r.ID] {
				continue
			}
			visited[r.ID] = true
			res = append(res, r)
			walk(r.ID)
		}
	}
	walk(managerID)
	return res
}

// IsInReportingChain reports whether employeeID sits anywhere under managerID.
func IsInReportingChain(employeeID, managerID string, roster []domain.Actor) bool {
	for _, r := range AllReports(managerID, roster) {
		if r.ID == employeeID {
			return true
		}
	}
	return false
}
