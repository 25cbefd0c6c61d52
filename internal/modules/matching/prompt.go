// README: Prompt construction for the AI ranking provider.
package matching

import (
	"fmt"
	"strings"
	"time"
)

// rankSystemInstruction fixes the rubric and the output contract. The output
// contract is deliberately minimal: one comma-separated index list that
// parseRankOrder can repair even when the provider strays.
const rankSystemInstruction = `Role: You are the ranking core for a campus ride-sharing service.
You receive one rider request and a numbered list of candidate driver rides.
Re-order the candidates from best to worst match using this rubric:
1. Pickup proximity: shorter pickup legs are better.
2. Time compatibility: schedules closer to the requested pickup time are better.
3. Route overlap: smaller detours mean the rider is on the driver's way.
4. Driver reliability: prefer higher driver ratings.
5. Safety: for night hours (21:00-05:00 local), weight driver rating more heavily.
6. Peak awareness: during peak hours (07:00-09:00, 17:00-19:00) prefer tighter time alignment over raw proximity.

OUTPUT CONTRACT (STRICT):
Reply with a single line containing only the candidate numbers in best-to-worst
order, separated by commas. Example for four candidates: 2,1,4,3
No explanations, no labels, no other text.`

// buildRankPrompt describes the request and each candidate in natural
// language for the provider.
func buildRankPrompt(q RideQuery, proposals []Proposal) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Rider request:\n")
	fmt.Fprintf(&b, "- Pickup: (%.5f, %.5f)\n", q.Pickup.Lat, q.Pickup.Lng)
	fmt.Fprintf(&b, "- Dropoff: (%.5f, %.5f)\n", q.Dropoff.Lat, q.Dropoff.Lng)
	fmt.Fprintf(&b, "- Requested pickup time: %s\n", q.PickupAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Fare: %d %s\n\n", q.Fare.Amount, q.Fare.Currency)

	fmt.Fprintf(&b, "Candidates (%d):\n", len(proposals))
	for i, p := range proposals {
		r := p.Ride
		fmt.Fprintf(&b, "%d. Driver rating %.1f/5, vehicle %q, scheduled %s\n",
			i+1, r.DriverRating, r.Vehicle, r.ScheduledAt.Format(time.RFC3339))
		fmt.Fprintf(&b, "   pickup leg %.2f km, dropoff leg %.2f km, detour %.2f km, time delta %s, base score %.1f\n",
			p.PickupDistanceKm, p.DropoffDistanceKm, p.DetourKm, p.TimeDelta.Round(time.Minute), p.Score)
	}

	b.WriteString("\nReturn the ranking now.")
	return b.String()
}
