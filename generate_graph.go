//go:build ignore
// +build ignore

package main

import (
	"fmt"
	"os"

	"gitlab.com/yelinaung/navigator-bot/internal/bot"
	"gitlab.com/yelinaung/navigator-bot/internal/models"
)

func main() {
	stats := []models.LocationStat{
		{Location: "street", Requests: 42},
		{Location: "building_1", Requests: 31},
		{Location: "building_2", Requests: 12},
		{Location: "building_3", Requests: 7},
		{Location: "dormitory", Requests: 25},
	}

	chartData, err := bot.GenerateUsageChart(stats, "Location requests", "en")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile("graph.png", chartData, 0600); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✓ Created graph.png - Example location usage chart")
}
