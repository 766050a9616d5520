package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type startResponse struct {
	JobID string `json:"job_id"`
	Poll  string `json:"poll"`
	Error string `json:"error"`
}

type jobResponse struct {
	Status string         `json:"status"`
	Result map[string]any `json:"result"`
	Error  string         `json:"error"`
}

func main() {
	_ = godotenv.Load()
	baseURL := flag.String("url", "http://localhost:8081", "server base URL")
	wait := flag.Duration("wait", 15*time.Minute, "how long to poll the job")
	flag.Parse()

	adminSecret := strings.TrimSpace(os.Getenv("ADMIN_SECRET"))
	if adminSecret == "" {
		fmt.Println("Missing ADMIN_SECRET environment variable")
		os.Exit(1)
	}

	client := &http.Client{Timeout: 30 * time.Second}

	var started startResponse
	status, err := call(client, http.MethodPost, *baseURL+"/api/v1/refresh", adminSecret, &started)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		os.Exit(1)
	}
	if status != http.StatusAccepted {
		fmt.Printf("Refresh not started (%d): %s\n", status, started.Error)
		os.Exit(1)
	}
	fmt.Printf("Started job %s\n", started.JobID)

	deadline := time.Now().Add(*wait)
	for time.Now().Before(deadline) {
		time.Sleep(3 * time.Second)

		var job jobResponse
		if _, err := call(client, http.MethodGet, *baseURL+started.Poll, adminSecret, &job); err != nil {
			fmt.Printf("Poll failed: %v\n", err)
			continue
		}
		switch job.Status {
		case "completed":
			fmt.Printf("Completed: %v\n", job.Result)
			return
		case "failed":
			fmt.Printf("Failed: %s\n", job.Error)
			os.Exit(1)
		}
	}
	fmt.Println("Timed out waiting for the refresh job")
	os.Exit(1)
}

func call(client *http.Client, method, url, secret string, v any) (int, error) {
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("X-Admin-Secret", secret)

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, json.NewDecoder(resp.Body).Decode(v)
}
