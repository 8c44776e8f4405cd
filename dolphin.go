package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"

	log "github.com/sirupsen/logrus"
)

// DolphinClient talks to the DolphinScheduler resource-management API.
// Authentication is a raw token header on every request.
type DolphinClient struct {
	BaseURL  string
	Token    string
	TenantID int
	Client   *http.Client
}

func NewDolphinClient(appConfig AppConfig) *DolphinClient {
	return &DolphinClient{
		BaseURL:  appConfig.BaseURL,
		Token:    appConfig.Token,
		TenantID: appConfig.TenantID,
		Client:   &http.Client{Timeout: appConfig.RequestTimeout()},
	}
}

type resourceInfo struct {
	ID    int    `json:"id"`
	Alias string `json:"alias"`
	Size  int64  `json:"size"`
}

type listResponse struct {
	Code int            `json:"code"`
	Msg  string         `json:"msg"`
	Data []resourceInfo `json:"data"`
}

type createResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (c *DolphinClient) listResources(searchVal string) (*listResponse, error) {
	query := url.Values{}
	query.Set("tenantId", strconv.Itoa(c.TenantID))
	query.Set("searchVal", searchVal)
	query.Set("page", "1")
	query.Set("pageSize", "10")

	req, reqErr := http.NewRequest(http.MethodGet, c.BaseURL+"/resources?"+query.Encode(), nil)
	if reqErr != nil {
		return nil, &NetworkError{Op: "existence check", Err: reqErr}
	}
	req.Header.Set("token", c.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, doErr := c.Client.Do(req)
	if doErr != nil {
		return nil, &NetworkError{Op: "existence check", Err: doErr}
	}
	defer resp.Body.Close()

	if statusErr := errorFromStatus(resp.StatusCode, searchVal); statusErr != nil {
		return nil, statusErr
	}

	var listed listResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&listed); decodeErr != nil {
		return nil, &RemoteServerError{StatusCode: resp.StatusCode, Msg: fmt.Sprintf("undecodable response: %s", decodeErr)}
	}
	if listed.Code != 0 {
		return nil, &RemoteServerError{StatusCode: resp.StatusCode, Msg: listed.Msg}
	}

	return &listed, nil
}

func (c *DolphinClient) Exists(name string, size int64) (bool, error) {
	listed, listErr := c.listResources(name)
	if listErr != nil {
		return false, listErr
	}

	for _, resource := range listed.Data {
		if resource.Alias == name && resource.Size == size {
			return true, nil
		}
	}

	return false, nil
}

// Upload sends the file as a multipart online-create request. The logical
// name is the slash-separated relative path, so subdirectory structure
// survives on the remote side.
func (c *DolphinClient) Upload(task UploadTask, suffix string) error {
	file, openErr := os.Open(task.AbsPath)
	if openErr != nil {
		return &LocalReadError{Path: task.AbsPath, Err: openErr}
	}
	defer file.Close()

	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	fields := map[string]string{
		"type":        "FILE",
		"name":        task.RelPath,
		"pid":         strconv.Itoa(task.ParentID),
		"currentDir":  "",
		"suffix":      suffix,
		"description": fmt.Sprintf("Synced from %s", task.RelPath),
	}
	for field, value := range fields {
		if fieldErr := form.WriteField(field, value); fieldErr != nil {
			return &LocalReadError{Path: task.AbsPath, Err: fieldErr}
		}
	}
	part, partErr := form.CreateFormFile("file", path.Base(task.RelPath))
	if partErr != nil {
		return &LocalReadError{Path: task.AbsPath, Err: partErr}
	}
	if _, copyErr := io.Copy(part, file); copyErr != nil {
		return &LocalReadError{Path: task.AbsPath, Err: copyErr}
	}
	if closeErr := form.Close(); closeErr != nil {
		return &LocalReadError{Path: task.AbsPath, Err: closeErr}
	}

	req, reqErr := http.NewRequest(http.MethodPost, c.BaseURL+"/resources/online-create", body)
	if reqErr != nil {
		return &NetworkError{Op: "upload", Err: reqErr}
	}
	req.Header.Set("token", c.Token)
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, doErr := c.Client.Do(req)
	if doErr != nil {
		return &NetworkError{Op: "upload", Err: doErr}
	}
	defer resp.Body.Close()

	if statusErr := errorFromStatus(resp.StatusCode, task.RelPath); statusErr != nil {
		return statusErr
	}

	var created createResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&created); decodeErr != nil {
		return &RemoteServerError{StatusCode: resp.StatusCode, Msg: fmt.Sprintf("undecodable response: %s", decodeErr)}
	}
	if created.Code != 0 {
		return &RemoteServerError{StatusCode: resp.StatusCode, Msg: created.Msg}
	}

	log.Debug(fmt.Sprintf("Upload accepted for %s", task.RelPath))
	return nil
}

// TestConnection issues an unfiltered resource listing so an operator can
// verify base URL and token before kicking off a real run.
func (c *DolphinClient) TestConnection() error {
	_, listErr := c.listResources("")
	return listErr
}

func errorFromStatus(statusCode int, name string) error {
	switch {
	case statusCode == http.StatusUnauthorized:
		return &AuthError{StatusCode: statusCode}
	case statusCode == http.StatusRequestEntityTooLarge:
		return &PayloadTooLargeError{Name: name}
	case statusCode >= 500:
		return &RemoteServerError{StatusCode: statusCode}
	case statusCode != http.StatusOK:
		return &RemoteServerError{StatusCode: statusCode}
	}
	return nil
}
