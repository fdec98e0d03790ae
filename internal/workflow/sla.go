package workflow

import (
	"time"
)

// SLAKind is the sweep's verdict for one approval.
type SLAKind string

const (
	SLANone          SLAKind = "none"
	SLAWarn          SLAKind = "warn"
	SLAEscalate      SLAKind = "escalate"
	SLAMisconfigured SLAKind = "misconfigured"
)

// ApproverProfile carries the organisational attributes used to pick a backup.
type ApproverProfile struct {
	Role       string
	Department string
}

// SLADecision is the result of EvaluateSLA.
type SLADecision struct {
	Kind      SLAKind
	BackupID  string
	Remaining time.Duration
	Reason    string
}

// EvaluateSLA decides what the sweep should do with approval at now. It has no side effects.
func EvaluateSLA(a *Approval, policy *SLAPolicy, profile ApproverProfile, now time.Time) SLADecision {
	if a == nil || policy == nil || a.Status != ApprovalPending || a.Deadline == nil {
		return SLADecision{Kind: SLANone}
	}

	remaining := a.Deadline.Sub(now)
	if remaining <= 0 {
		if !policy.AutoReassign || a.IsEscalated {
			return SLADecision{Kind: SLANone, Remaining: remaining}
		}
		backup := policy.BackupFor(profile)
		if backup == "" || backup == a.ApproverID {
			return SLADecision{
				Kind:      SLAMisconfigured,
				Remaining: remaining,
				Reason:    "no backup assignee for role " + quoteOrDash(profile.Role) + " or department " + quoteOrDash(profile.Department),
			}
		}
		return SLADecision{Kind: SLAEscalate, BackupID: backup, Remaining: remaining}
	}

	if policy.WarningThreshold > 0 && remaining <= hoursToDuration(policy.WarningThreshold) && reminderDue(a, policy, now) {
		return SLADecision{Kind: SLAWarn, Remaining: remaining}
	}
	return SLADecision{Kind: SLANone, Remaining: remaining}
}

// BackupFor returns the substitute for profile, preferring the role entry over the department entry.
func (p *SLAPolicy) BackupFor(profile ApproverProfile) string {
	if p == nil {
		return ""
	}
	if profile.Role != "" {
		if id := p.BackupAssignees[profile.Role]; id != "" {
			return id
		}
	}
	if profile.Department != "" {
		if id := p.BackupAssignees[profile.Department]; id != "" {
			return id
		}
	}
	return ""
}

func reminderDue(a *Approval, policy *SLAPolicy, now time.Time) bool {
	if a.RemindersSent == 0 || a.LastReminderSent == nil {
		return true
	}
	if policy.ReminderInterval <= 0 {
		return false
	}
	return now.Sub(*a.LastReminderSent) >= hoursToDuration(policy.ReminderInterval)
}

func quoteOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return `"` + s + `"`
}
