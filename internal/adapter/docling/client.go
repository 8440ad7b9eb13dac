package docling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrTransient marks failures worth retrying: network errors and server-side
// conversion errors.
var ErrTransient = errors.New("transient document conversion failure")

// ErrDocument marks failures that retrying cannot fix: the reference is
// rejected or the document cannot be converted.
var ErrDocument = errors.New("document cannot be converted")

// Client converts a remote document into markdown text through a
// docling-serve instance.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 120 * time.Second},
	}
}

type convertRequest struct {
	HTTPSources []httpSource   `json:"http_sources"`
	Options     convertOptions `json:"options"`
}

type httpSource struct {
	URL string `json:"url"`
}

type convertOptions struct {
	ToFormats []string `json:"to_formats"`
}

type convertResponse struct {
	Status   string `json:"status"`
	Document struct {
		MDContent string `json:"md_content"`
	} `json:"document"`
}

// ExtractText fetches the referenced document and returns its markdown text.
func (c *Client) ExtractText(ctx context.Context, docURL string) (string, error) {
	body, err := json.Marshal(convertRequest{
		HTTPSources: []httpSource{{URL: docURL}},
		Options:     convertOptions{ToFormats: []string{"md"}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal convert request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1alpha/convert/source", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create convert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode >= 500 {
			return "", fmt.Errorf("%w: docling returned %s: %s", ErrTransient, resp.Status, payload)
		}
		return "", fmt.Errorf("%w: docling returned %s: %s", ErrDocument, resp.Status, payload)
	}

	var converted convertResponse
	if err := json.NewDecoder(resp.Body).Decode(&converted); err != nil {
		return "", fmt.Errorf("%w: decode convert response: %v", ErrDocument, err)
	}
	if converted.Status != "" && converted.Status != "success" {
		return "", fmt.Errorf("%w: conversion status %q", ErrDocument, converted.Status)
	}

	slog.InfoContext(ctx, "document converted",
		"url", docURL, "length", len(converted.Document.MDContent), "took", time.Since(start))
	return converted.Document.MDContent, nil
}
