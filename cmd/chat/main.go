// Package main implements a terminal chat client for the askpaper API:
// optionally upload a document, then ask questions in a loop. Suggested
// follow-up questions can be accepted by answering "y".
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

type chatRequest struct {
	Question     string `json:"question"`
	UseFollowup  bool   `json:"use_followup"`
	FollowupText string `json:"followup_text,omitempty"`
}

type chatResponse struct {
	Answer   string  `json:"answer"`
	Followup *string `json:"followup"`
	Error    string  `json:"error"`
}

type uploadResponse struct {
	Document string `json:"document"`
	Chunks   int    `json:"chunks"`
	Status   string `json:"status"`
	Error    string `json:"error"`
}

func main() {
	uploadPath := flag.String("upload", "", "document to upload before chatting")
	flag.Parse()

	apiURL := strings.TrimRight(envOr("ASKPAPER_URL", "http://localhost:8080"), "/")
	client := &http.Client{Timeout: 5 * time.Minute}

	if *uploadPath != "" {
		if err := upload(client, apiURL, *uploadPath); err != nil {
			fmt.Fprintln(os.Stderr, "upload failed:", err)
			os.Exit(1)
		}
	}

	fmt.Println(`Ask a question about the document ("exit" to quit).`)

	var pendingFollowup string
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		req := chatRequest{Question: line}
		if pendingFollowup != "" && isYes(line) {
			req = chatRequest{UseFollowup: true, FollowupText: pendingFollowup}
		}
		pendingFollowup = ""

		resp, err := ask(client, apiURL, req)
		if err != nil {
			fmt.Fprintln(os.Stderr, "request failed:", err)
			continue
		}
		if resp.Error != "" {
			fmt.Fprintln(os.Stderr, resp.Error)
			continue
		}

		fmt.Println(resp.Answer)
		if strings.EqualFold(line, "exit") {
			return
		}
		if resp.Followup != nil && *resp.Followup != "" {
			pendingFollowup = *resp.Followup
			fmt.Printf("Suggested follow-up: %s (y to ask)\n", pendingFollowup)
		}
	}
}

func isYes(s string) bool {
	switch strings.ToLower(s) {
	case "y", "yes":
		return true
	}
	return false
}

func ask(client *http.Client, apiURL string, req chatRequest) (*chatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpResp, err := client.Post(apiURL+"/api/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var resp chatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func upload(client *http.Client, apiURL, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return err
	}
	mw.Close()

	httpResp, err := client.Post(apiURL+"/api/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	var resp uploadResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("%s", resp.Error)
	}
	fmt.Printf("Uploaded %s: %d chunks\n", resp.Document, resp.Chunks)
	return nil
}
