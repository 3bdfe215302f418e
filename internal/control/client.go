package control

import (
	"github.com/forumkit/searchsync/pkg/grpc"
	"github.com/forumkit/searchsync/pkg/proto"
)

// Client is the typed admin-side view of the control RPC surface.
type Client struct {
	rpc *grpc.Client
}

// Dial connects to a daemon's control listener.
func Dial(addr string) (*Client, error) {
	rpc, err := grpc.Dial(addr)
	if err != nil {
		return nil, err
	}
	return &Client{rpc: rpc}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.rpc.Close()
}

// Rebuild starts a background full reindex on the daemon.
func (c *Client) Rebuild() (*proto.Ack, error) {
	var ack proto.Ack
	if err := c.rpc.Call(MethodRebuild, &proto.RebuildRequest{}, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// Clear starts a background full clear on the daemon.
func (c *Client) Clear() (*proto.Ack, error) {
	var ack proto.Ack
	if err := c.rpc.Call(MethodClear, &proto.ClearRequest{}, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// Progress fetches the current rebuild progress view.
func (c *Client) Progress() (*proto.ProgressResponse, error) {
	var resp proto.ProgressResponse
	if err := c.rpc.Call(MethodProgress, &proto.ProgressRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ReindexTopic re-derives one topic and all its posts.
func (c *Client) ReindexTopic(topicID int64) (*proto.Ack, error) {
	var ack proto.Ack
	if err := c.rpc.Call(MethodReindexTopic, &proto.ReindexTopicRequest{TopicID: topicID}, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// ReindexPost re-derives one post.
func (c *Client) ReindexPost(postID int64) (*proto.Ack, error) {
	var ack proto.Ack
	if err := c.rpc.Call(MethodReindexPost, &proto.ReindexPostRequest{PostID: postID}, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// Settings fetches the shared runtime settings snapshot.
func (c *Client) Settings() (*proto.SettingsResponse, error) {
	var resp proto.SettingsResponse
	if err := c.rpc.Call(MethodGetSettings, &proto.GetSettingsRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SaveSettings applies a partial settings update and returns the resulting
// snapshot.
func (c *Client) SaveSettings(req proto.SaveSettingsRequest) (*proto.SettingsResponse, error) {
	var resp proto.SettingsResponse
	if err := c.rpc.Call(MethodSaveSettings, &req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ChangeLanguage switches the index language.
func (c *Client) ChangeLanguage(language string) (*proto.Ack, error) {
	var ack proto.Ack
	if err := c.rpc.Call(MethodChangeLanguage, &proto.ChangeLanguageRequest{Language: language}, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// Search runs a query against the daemon's index.
func (c *Client) Search(req proto.QueryRequest) (*proto.QueryResponse, error) {
	var resp proto.QueryResponse
	if err := c.rpc.Call(MethodSearch, &req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
