package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/studyhive/roompresence/internal/models"
)

// Walks a simulated device along a straight line through the home region and
// reports the resulting boundary crossings to a running presence server. The
// device starts outside, crosses in, lingers, then crosses back out, which
// exercises both the join race and the involuntary leave path.

var (
	serverURL = flag.String("server", "http://localhost:8085", "Presence server base URL")
	userID    = flag.String("user", "", "User ID to join with (required)")
	roomID    = flag.String("room", "room-1", "Room ID to join")
	lat       = flag.Float64("lat", 40.4562, "Region center latitude")
	lon       = flag.Float64("lon", -85.49709, "Region center longitude")
	radius    = flag.Float64("radius", 500, "Region radius in meters")
	stepDelay = flag.Duration("step", 2*time.Second, "Delay between movement steps")
	dwell     = flag.Duration("dwell", 10*time.Second, "Time spent inside before walking out")
)

func main() {
	flag.Parse()

	if *userID == "" {
		fmt.Println("Error: --user flag is required")
		flag.Usage()
		os.Exit(1)
	}

	region := models.Region{
		Identifier:   "library",
		Latitude:     *lat,
		Longitude:    *lon,
		RadiusMeters: *radius,
	}

	// Roughly 1 degree latitude == 111km; offsets below put the device about
	// 2x the radius outside, then walk it through the center.
	degPerMeter := 1.0 / 111_000.0
	offset := 2.0 * *radius * degPerMeter
	startLat := *lat - offset
	endLat := *lat + offset
	steps := 20

	fmt.Printf("Walking device from (%.5f, %.5f) to (%.5f, %.5f) in %d steps\n",
		startLat, *lon, endLat, *lon, steps)

	fmt.Printf("Provisioning user %s...\n", *userID)
	status, body := post(*serverURL+"/api/v1/users", map[string]string{"user_id": *userID})
	fmt.Printf("Create response: %d %s\n", status, body)

	// Kick off the join while the device is still outside so the geofence
	// race is live when the device crosses in.
	go func() {
		fmt.Printf("Joining room %s as %s...\n", *roomID, *userID)
		status, body := post(fmt.Sprintf("%s/api/v1/rooms/%s/join", *serverURL, *roomID),
			map[string]string{"user_id": *userID})
		fmt.Printf("Join response: %d %s\n", status, body)
	}()

	inside := false
	for i := 0; i <= steps; i++ {
		curLat := startLat + (endLat-startLat)*float64(i)/float64(steps)
		nowInside := region.Contains(curLat, *lon)

		if nowInside != inside {
			inside = nowInside
			sendCrossing(region, inside)
		}

		if inside && i == steps/2 {
			fmt.Printf("Dwelling inside for %s...\n", *dwell)
			time.Sleep(*dwell)
		}

		time.Sleep(*stepDelay)
	}

	if inside {
		sendCrossing(region, false)
	}

	fmt.Println("Walk complete.")
}

func sendCrossing(region models.Region, inside bool) {
	evtType := string(models.GeofenceExit)
	if inside {
		evtType = string(models.GeofenceEnter)
	}

	fmt.Printf("Boundary crossing: %s\n", evtType)
	status, body := post(*serverURL+"/api/v1/geofence/events", map[string]interface{}{
		"type":   evtType,
		"region": region,
	})
	fmt.Printf("Event response: %d %s\n", status, body)
}

func post(url string, payload interface{}) (int, string) {
	data, err := json.Marshal(payload)
	if err != nil {
		fmt.Printf("Failed to marshal payload: %v\n", err)
		os.Exit(1)
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		fmt.Printf("Request to %s failed: %v\n", url, err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)

	return resp.StatusCode, buf.String()
}
