// Package perf derives read-only performance metrics from a project's
// task set. Nothing is cached: every call recomputes from the snapshot
// it is handed, which is cheap at board scale.
package perf

import (
	"math"
	"time"

	"github.com/DXD-Magante/dxd-magnate-sub002/domain"
)

// MemberStats are the per-assignee metrics surfaced to the dashboard.
type MemberStats struct {
	Member         domain.TeamMember `json:"member"`
	TotalTasks     int               `json:"totalTasks"`
	CompletedTasks int               `json:"completedTasks"`
	OverdueTasks   int               `json:"overdueTasks"`
	CompletionRate int               `json:"completionRate"`
	Efficiency     int               `json:"efficiency"`
}

// Summary aggregates a whole project.
type Summary struct {
	Members        map[string]MemberStats `json:"members"`
	TotalTasks     int                    `json:"totalTasks"`
	CompletedTasks int                    `json:"completedTasks"`
	OverdueTasks   int                    `json:"overdueTasks"`
	CompletionRate int                    `json:"completionRate"`
	TeamEfficiency int                    `json:"teamEfficiency"`
}

// CompletionRate is the rounded percentage of completed tasks, 0 when
// there are no tasks.
func CompletionRate(completed, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(completed) / float64(total)))
}

// Efficiency divides completed tasks by total plus overdue. Overdue
// tasks are already part of the total, so they weigh double here. That
// matches the dashboard's historical behavior and is kept verbatim
// pending product clarification.
func Efficiency(completed, total, overdue int) int {
	denominator := total + overdue
	if denominator == 0 {
		return 0
	}
	return int(math.Round(100 * float64(completed) / float64(denominator)))
}

// Compute builds the full summary for a project as of now. Per-member
// stats cover every team member, including those with no tasks; tasks
// assigned to someone no longer on the roster count toward project
// totals only.
func Compute(project domain.Project, tasks []domain.Task, now time.Time) Summary {
	summary := Summary{Members: make(map[string]MemberStats, len(project.TeamMembers))}

	type counts struct{ total, completed, overdue int }
	byMember := make(map[string]*counts, len(project.TeamMembers))
	for _, m := range project.TeamMembers {
		byMember[m.ID] = &counts{}
	}

	for _, t := range tasks {
		summary.TotalTasks++
		done := t.Status == domain.StatusDone
		overdue := t.Overdue(now)
		if done {
			summary.CompletedTasks++
		}
		if overdue {
			summary.OverdueTasks++
		}
		if !t.Assigned() {
			continue
		}
		c, ok := byMember[t.Assignee.ID]
		if !ok {
			continue
		}
		c.total++
		if done {
			c.completed++
		}
		if overdue {
			c.overdue++
		}
	}

	// Team efficiency is the unweighted mean over members, not over
	// tasks: a member with one task counts as much as one with thirty.
	effSum := 0
	for _, m := range project.TeamMembers {
		c := byMember[m.ID]
		stats := MemberStats{
			Member:         m,
			TotalTasks:     c.total,
			CompletedTasks: c.completed,
			OverdueTasks:   c.overdue,
			CompletionRate: CompletionRate(c.completed, c.total),
			Efficiency:     Efficiency(c.completed, c.total, c.overdue),
		}
		summary.Members[m.ID] = stats
		effSum += stats.Efficiency
	}
	if n := len(project.TeamMembers); n > 0 {
		summary.TeamEfficiency = int(math.Round(float64(effSum) / float64(n)))
	}
	summary.CompletionRate = CompletionRate(summary.CompletedTasks, summary.TotalTasks)
	return summary
}
