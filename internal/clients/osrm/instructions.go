package osrm

import (
	"fmt"
	"math"
	"strings"
)

var compassPoints = []string{"north", "northeast", "east", "southeast", "south", "southwest", "west", "northwest"}

// instructionText renders a step as a human readable sentence
func instructionText(step RouteStep, legIndex int, lastLeg bool) string {
	road := step.Name
	if road == "" {
		road = step.Ref
	}
	modifier := step.Maneuver.Modifier

	switch step.Maneuver.Type {
	case "depart":
		return withRoad(fmt.Sprintf("Head %s", compass(step.Maneuver.BearingAfter)), "on", road)
	case "arrive":
		if lastLeg {
			return "You have arrived at your destination"
		}
		return fmt.Sprintf("You have arrived at stop %d", legIndex+1)
	case "roundabout", "rotary":
		if step.Maneuver.Exit > 0 {
			return withRoad(fmt.Sprintf("Take the %s exit at the roundabout", ordinal(step.Maneuver.Exit)), "onto", road)
		}
		return withRoad("Enter the roundabout", "and exit onto", road)
	case "merge":
		return withRoad(strings.TrimSpace("Merge "+modifier), "onto", road)
	case "on ramp":
		return withRoad(strings.TrimSpace("Take the ramp "+modifier), "onto", road)
	case "off ramp":
		return withRoad(strings.TrimSpace("Take the exit "+modifier), "onto", road)
	case "fork":
		return withRoad(fmt.Sprintf("Keep %s at the fork", orStraight(modifier)), "onto", road)
	case "new name":
		return withRoad("Continue", "onto", road)
	case "continue":
		if modifier == "" || modifier == "straight" {
			return withRoad("Continue straight", "on", road)
		}
	}

	switch modifier {
	case "uturn":
		return withRoad("Make a U-turn", "onto", road)
	case "straight", "":
		return withRoad("Continue straight", "onto", road)
	default:
		return withRoad("Turn "+modifier, "onto", road)
	}
}

func withRoad(text, preposition, road string) string {
	if road == "" {
		return text
	}
	return text + " " + preposition + " " + road
}

func orStraight(modifier string) string {
	if modifier == "" {
		return "straight"
	}
	return modifier
}

// compass converts a bearing in degrees to one of eight compass points
func compass(bearing float64) string {
	normalized := math.Mod(math.Mod(bearing, 360)+360, 360)
	return compassPoints[int(math.Round(normalized/45))%len(compassPoints)]
}

func ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
