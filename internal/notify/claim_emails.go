package notify

import (
	"fmt"
	"strings"
)

// ClaimApprovedEmail is sent to the claimant when a chamber admin approves their claim.
func ClaimApprovedEmail(to, businessName, portalURL string) Message {
	lines := []string{
		fmt.Sprintf("Your claim for %s has been approved. You can now log in to start adding products.", businessName),
	}
	if portalURL != "" {
		lines = append(lines, "", "Dashboard: "+strings.TrimRight(portalURL, "/")+"/merchant/dashboard")
	}
	return Message{
		To:      to,
		Subject: "Welcome to Shop Local!",
		Body:    strings.Join(lines, "\n"),
	}
}

// ClaimDeniedEmail is sent to the claimant when their claim is denied.
func ClaimDeniedEmail(to, businessName, reason string) Message {
	return Message{
		To:      to,
		Subject: "Shop Local Claim Decision",
		Body:    fmt.Sprintf("Your claim for %s was not approved. Reason: %s", businessName, reason),
	}
}
