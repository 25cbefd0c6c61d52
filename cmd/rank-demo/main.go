package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"unipool/internal/ai"
)

func main() {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		log.Fatal("GEMINI_API_KEY environment variable not set")
	}

	ctx := context.Background()
	ranker, err := ai.NewGeminiRanker(ctx, apiKey)
	if err != nil {
		log.Fatalf("Failed to initialize ranker: %v", err)
	}
	defer ranker.Close()

	instruction := "You rank shared-ride candidates for a rider. " +
		"Respond with a single line of comma-separated candidate numbers, best first. " +
		"No other text."

	prompt := `Rider: pickup (25.0478, 121.5170), dropoff (25.0330, 121.5654), wants pickup at 09:00.
Candidates:
1. driver rating 4.9, pickup 0.4 km away, departs 08:55, detour 0.8 km
2. driver rating 4.2, pickup 1.9 km away, departs 09:10, detour 2.4 km
3. driver rating 4.7, pickup 0.9 km away, departs 08:45, detour 1.5 km`

	fmt.Println("Prompt:")
	fmt.Println(prompt)

	callCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	raw, err := ranker.RankOrder(callCtx, instruction, prompt)
	if err != nil {
		log.Fatalf("Error ranking: %v (retryable=%v)", err, ai.IsRetryable(err))
	}

	fmt.Printf("Model ranking: %s\n", raw)
}
