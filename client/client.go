// client/client.go
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"latch/internal/project"
	"latch/internal/syncqueue"
	"latch/internal/task"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: time.Second * 10,
		},
	}
}

// Task operations
func (c *Client) CreateTask(t *task.Task) (*task.Task, error) {
	var result task.Task
	if err := c.post(fmt.Sprintf("%s/api/tasks", c.baseURL), t, http.StatusCreated, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) GetTask(id string) (*task.Task, error) {
	var result task.Task
	if err := c.get(fmt.Sprintf("%s/api/tasks/%s", c.baseURL, id), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ListTasks() ([]*task.Task, error) {
	var tasks []*task.Task
	if err := c.get(fmt.Sprintf("%s/api/tasks", c.baseURL), &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (c *Client) UpdateTask(id string, patch map[string]interface{}) (*task.Task, error) {
	var result task.Task
	if err := c.patch(fmt.Sprintf("%s/api/tasks/%s", c.baseURL, id), patch, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) DeleteTask(id string) error {
	return c.delete(fmt.Sprintf("%s/api/tasks/%s", c.baseURL, id))
}

// Project operations
func (c *Client) CreateProject(p *project.Project) (*project.Project, error) {
	var result project.Project
	if err := c.post(fmt.Sprintf("%s/api/projects", c.baseURL), p, http.StatusCreated, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ListProjects() ([]*project.Project, error) {
	var projects []*project.Project
	if err := c.get(fmt.Sprintf("%s/api/projects", c.baseURL), &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

func (c *Client) DeleteProject(id string) error {
	return c.delete(fmt.Sprintf("%s/api/projects/%s", c.baseURL, id))
}

// Sync queue operations
func (c *Client) ListQueue() ([]*syncqueue.Entry, error) {
	var entries []*syncqueue.Entry
	if err := c.get(fmt.Sprintf("%s/api/queue", c.baseURL), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) QueueStats() (map[string]int, error) {
	var stats map[string]int
	if err := c.get(fmt.Sprintf("%s/api/queue/stats", c.baseURL), &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func (c *Client) FlushQueue() (*syncqueue.Result, error) {
	var result syncqueue.Result
	if err := c.post(fmt.Sprintf("%s/api/queue/flush", c.baseURL), nil, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ClearQueue() error {
	return c.delete(fmt.Sprintf("%s/api/queue", c.baseURL))
}

// Connectivity operations
func (c *Client) SetOnline(online bool) error {
	body := map[string]bool{"online": online}
	return c.put(fmt.Sprintf("%s/api/connectivity", c.baseURL), body)
}

func (c *Client) Online() (bool, error) {
	var state map[string]bool
	if err := c.get(fmt.Sprintf("%s/api/connectivity", c.baseURL), &state); err != nil {
		return false, err
	}
	return state["online"], nil
}

// HTTP helpers

func (c *Client) get(url string, out interface{}) error {
	resp, err := c.httpClient.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) post(url string, body interface{}, wantStatus int, out interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	resp, err := c.httpClient.Post(url, "application/json", &buf)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) patch(url string, body interface{}, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPatch, url, bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) put(url string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPut, url, bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}
	return nil
}

func (c *Client) delete(url string) error {
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}
	return nil
}
