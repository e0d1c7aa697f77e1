package graph

import "time"

// ChildCountUnknown indicates the child count was not present in the API response.
const ChildCountUnknown = -1

// Item represents a drive item (file or folder) resolved from a path.
// Fields are normalized from the Graph API response; callers never see raw API data.
type Item struct {
	ID           string
	Name         string
	DriveID      string
	ParentID     string
	ParentPath   string // parentReference.path, e.g. "/drive/root:/docs"
	Size         int64
	ETag         string
	IsFile       bool
	IsFolder     bool
	MimeType     string
	QuickXorHash string // base64; empty when the server sent none
	CreatedAt    time.Time
	ModifiedAt   time.Time
	ChildCount   int    // ChildCountUnknown if not present
	DownloadURL  string // pre-authenticated, ephemeral; NEVER log
}

// UploadSession is a short-lived server-issued handle for one chunked
// upload. It is created per write and discarded afterwards.
type UploadSession struct {
	UploadURL      string // pre-authenticated; NEVER log
	ExpirationTime time.Time
}

// Site is a SharePoint site returned by site search.
type Site struct {
	ID          string
	Name        string
	DisplayName string
	WebURL      string
}

// Credentials identify one app registration in one tenant.
type Credentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}
