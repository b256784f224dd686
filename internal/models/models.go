package models

import (
	"cmp"
	"encoding/json"
	"time"
)

const (
	RootParent      int64 = 0
	DefaultIP             = "0.0.0.0"
	DefaultIDPrefix       = "qcom"
)

type Comment struct {
	ID             int64           `json:"id"`
	Thread         string          `json:"thread"`
	Parent         int64           `json:"parent"`
	Rank           *string         `json:"rank,omitempty"`
	Author         int64           `json:"author"`
	Body           string          `json:"body"`
	CreatedOn      time.Time       `json:"createdon"`
	EditedOn       *time.Time      `json:"editedon,omitempty"`
	Approved       bool            `json:"approved"`
	ApprovedOn     *time.Time      `json:"approvedon,omitempty"`
	ApprovedBy     int64           `json:"approvedby,omitempty"`
	Rejected       bool            `json:"rejected"`
	RejectedOn     *time.Time      `json:"rejectedon,omitempty"`
	RejectedBy     int64           `json:"rejectedby,omitempty"`
	Name           string          `json:"name,omitempty"`
	Email          string          `json:"email,omitempty"`
	Website        string          `json:"website,omitempty"`
	IP             string          `json:"ip,omitempty"`
	Deleted        bool            `json:"deleted"`
	DeletedOn      *time.Time      `json:"deletedon,omitempty"`
	DeletedBy      int64           `json:"deletedby,omitempty"`
	Resource       int64           `json:"resource"`
	IDPrefix       string          `json:"idprefix"`
	ExistingParams json.RawMessage `json:"existing_params,omitempty"`
}

func (c *Comment) IsRoot() bool {
	return c.Parent == RootParent
}

func (c *Comment) IsGuest() bool {
	return c.Author == 0
}

// Visible reports whether the comment is shown to regular readers.
func (c *Comment) Visible() bool {
	return c.Approved && !c.Deleted
}

// CompareComments orders siblings by rank, creation time and id. Comments
// without a rank sort last in both directions.
func CompareComments(a, b *Comment, desc bool) int {
	sign := 1
	if desc {
		sign = -1
	}
	switch {
	case a.Rank != nil && b.Rank == nil:
		return -1
	case a.Rank == nil && b.Rank != nil:
		return 1
	case a.Rank != nil && b.Rank != nil:
		if c := cmp.Compare(*a.Rank, *b.Rank); c != 0 {
			return sign * c
		}
	}
	if c := a.CreatedOn.Compare(b.CreatedOn); c != 0 {
		return sign * c
	}
	return sign * cmp.Compare(a.ID, b.ID)
}

// Actor is whoever performs a request. ID 0 is an anonymous guest.
type Actor struct {
	ID          int64    `json:"id"`
	Username    string   `json:"username,omitempty"`
	IP          string   `json:"-"`
	Permissions []string `json:"permissions,omitempty"`
}

func (a Actor) IsGuest() bool {
	return a.ID == 0
}

type CreateRequest struct {
	Thread   string          `json:"thread"`
	Parent   int64           `json:"parent,omitempty"`
	Body     string          `json:"body"`
	Resource int64           `json:"resource,omitempty"`
	Rank     *string         `json:"rank,omitempty"`
	Name     string          `json:"name,omitempty"`
	Email    string          `json:"email,omitempty"`
	Website  string          `json:"website,omitempty"`
	IDPrefix string          `json:"idprefix,omitempty"`
	Params   json.RawMessage `json:"existing_params,omitempty"`
}

type EditRequest struct {
	Body string `json:"body"`
}

type IDsRequest struct {
	IDs []int64 `json:"ids"`
}

// Node is one comment in an assembled thread view.
type Node struct {
	Comment
	Depth       int     `json:"depth"`
	Placeholder bool    `json:"placeholder,omitempty"`
	Children    []*Node `json:"children"`
}

type Page struct {
	Page      int    `json:"page"`
	Limit     int    `json:"limit"`
	SortOrder string `json:"sort_order"`
}

type ThreadView struct {
	Thread   string  `json:"thread"`
	Policy   Policy  `json:"policy"`
	Comments []*Node `json:"comments"`
	Total    int     `json:"total"`
	Page     int     `json:"page"`
	Limit    int     `json:"limit"`
}
