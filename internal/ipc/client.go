package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[Req any, Resp any](c *Client, method string, req Req) (*Resp, error) {
	var resp Resp
	if err := c.client.Call(serviceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Start requests the daemon to resume processing.
func (c *Client) Start() (*StartResponse, error) {
	return call[StartRequest, StartResponse](c, "Start", StartRequest{})
}

// Stop requests the daemon to pause processing.
func (c *Client) Stop() (*StopResponse, error) {
	return call[StopRequest, StopResponse](c, "Stop", StopRequest{})
}

// Shutdown asks the daemon process to exit.
func (c *Client) Shutdown() (*ShutdownResponse, error) {
	return call[ShutdownRequest, ShutdownResponse](c, "Shutdown", ShutdownRequest{})
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusRequest, StatusResponse](c, "Status", StatusRequest{})
}

// JobAdd creates a job.
func (c *Client) JobAdd(req JobAddRequest) (*JobResponse, error) {
	return call[JobAddRequest, JobResponse](c, "JobAdd", req)
}

// JobList returns jobs optionally filtered by statuses.
func (c *Client) JobList(statuses []string) (*JobListResponse, error) {
	return call[JobListRequest, JobListResponse](c, "JobList", JobListRequest{Statuses: statuses})
}

// JobShow returns a single job.
func (c *Client) JobShow(id string) (*JobResponse, error) {
	return call[JobRequest, JobResponse](c, "JobShow", JobRequest{ID: id})
}

// JobRetry retries a failed job.
func (c *Client) JobRetry(id string) (*JobResponse, error) {
	return call[JobRequest, JobResponse](c, "JobRetry", JobRequest{ID: id})
}

// JobCancel cancels a job.
func (c *Client) JobCancel(id string) (*JobResponse, error) {
	return call[JobRequest, JobResponse](c, "JobCancel", JobRequest{ID: id})
}

// JobAdvance runs one workflow step for the job.
func (c *Client) JobAdvance(id string) (*JobResponse, error) {
	return call[JobRequest, JobResponse](c, "JobAdvance", JobRequest{ID: id})
}

// JobRetryPublish re-sends a completed job's library publish.
func (c *Client) JobRetryPublish(id string) (*JobResponse, error) {
	return call[JobRequest, JobResponse](c, "JobRetryPublish", JobRequest{ID: id})
}

// JobImport feeds a local path to post-processing for the job. The call
// blocks until post-processing finishes.
func (c *Client) JobImport(id, sourcePath string) (*JobResponse, error) {
	return call[JobImportRequest, JobResponse](c, "JobImport", JobImportRequest{ID: id, SourcePath: sourcePath})
}

// JobPrune removes terminal jobs older than olderThan.
func (c *Client) JobPrune(olderThan time.Duration) (*JobPruneResponse, error) {
	return call[JobPruneRequest, JobPruneResponse](c, "JobPrune", JobPruneRequest{OlderThanSeconds: int64(olderThan / time.Second)})
}

// QueueHealth returns queue diagnostics.
func (c *Client) QueueHealth() (*QueueHealthResponse, error) {
	return call[QueueHealthRequest, QueueHealthResponse](c, "QueueHealth", QueueHealthRequest{})
}

// DatabaseHealth retrieves detailed database diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	return call[DatabaseHealthRequest, DatabaseHealthResponse](c, "DatabaseHealth", DatabaseHealthRequest{})
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	return call[TestNotificationRequest, TestNotificationResponse](c, "TestNotification", TestNotificationRequest{})
}
