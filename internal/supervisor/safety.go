package supervisor

import "strings"

// AssessSafety runs the pre-install advisory check (spec §4.3.1). It is
// heuristic: registry-backed installs (pypi/npm) are low risk, repo
// installs carry an arbitrary-code risk proportional to how the
// entrypoint was resolved, and manual/oci installs running attacker-
// supplied commands are never auto-blocked but always flagged.
func AssessSafety(req InstallRequest) SafetyReport {
	switch req.Method {
	case MethodPyPI, MethodNPM:
		return SafetyReport{RiskLevel: "low", RiskScore: 10, Blocked: false}

	case MethodOCI:
		return SafetyReport{RiskLevel: "medium", RiskScore: 40, Blocked: false,
			Reason: "container images run with access to the host's Docker daemon"}

	case MethodRepo:
		report := SafetyReport{RiskLevel: "medium", RiskScore: 35}
		if strings.TrimSpace(req.Entrypoint) == "" {
			report.RiskScore += 15
			report.Reason = "entrypoint not specified; will be auto-detected from an untrusted repository"
		}
		if report.RiskScore >= 60 {
			report.RiskLevel = "high"
			report.Blocked = true
		}
		return report

	case MethodManual:
		return SafetyReport{RiskLevel: "high", RiskScore: 70, Blocked: false,
			Reason: "runs an operator-supplied command with no package-manager provenance"}

	case MethodHTTP:
		if strings.HasPrefix(strings.ToLower(req.ServerURL), "https://") {
			return SafetyReport{RiskLevel: "low", RiskScore: 15, Blocked: false}
		}
		return SafetyReport{RiskLevel: "medium", RiskScore: 45, Blocked: false,
			Reason: "server_url is not TLS-protected"}

	default:
		return SafetyReport{RiskLevel: "unknown", RiskScore: 100, Blocked: true,
			Reason: "unrecognized install method"}
	}
}
