package remote

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeclaredKindOf(t *testing.T) {
	tests := []struct {
		path string
		want Kind
	}{
		{"/scans/receipt.png", KindImage},
		{"/scans/receipt.JPG", KindImage},
		{"/docs/contract.pdf", KindPDF},
		{"/data/export.csv", KindCSV},
		{"/notes/todo.txt", KindText},
		{"/notes/readme.md", KindText},
		{"/bin/app.exe", KindUnknown},
		{"/noextension", KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, DeclaredKindOf(tt.path))
		})
	}
}

func TestMemoryClient_ListAndFetch(t *testing.T) {
	ctx := context.Background()
	client := NewMemoryClient()

	rev1 := client.Put("/a.txt", []byte("alpha"))
	client.Put("/b.csv", []byte("x,y"))

	listing, err := client.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, listing.Files, 2)
	assert.False(t, listing.Incremental)
	assert.Equal(t, "/a.txt", listing.Files[0].Path)
	assert.Equal(t, rev1, listing.Files[0].Revision)
	assert.Equal(t, KindText, listing.Files[0].DeclaredKind)
	assert.Equal(t, KindCSV, listing.Files[1].DeclaredKind)

	data, rev, err := client.Fetch(ctx, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("alpha"), data)
	assert.Equal(t, rev1, rev)
}

func TestMemoryClient_RevisionAdvancesOnPut(t *testing.T) {
	client := NewMemoryClient()

	rev1 := client.Put("/a.txt", []byte("v1"))
	rev2 := client.Put("/a.txt", []byte("v2"))

	assert.NotEqual(t, rev1, rev2, "revision must change with content")

	_, rev, err := client.Fetch(context.Background(), "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, rev2, rev)
}

func TestMemoryClient_IncrementalListing(t *testing.T) {
	ctx := context.Background()
	client := NewMemoryClient()

	client.Put("/a.txt", []byte("alpha"))
	client.Put("/b.txt", []byte("beta"))

	full, err := client.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, full.Files, 2)
	require.NotEmpty(t, full.Cursor)

	// Nothing changed: the incremental listing is empty.
	inc, err := client.List(ctx, full.Cursor)
	require.NoError(t, err)
	assert.True(t, inc.Incremental)
	assert.Empty(t, inc.Files)

	// One update and one delete since the cursor.
	client.Put("/b.txt", []byte("beta v2"))
	client.Delete("/a.txt")

	inc, err = client.List(ctx, full.Cursor)
	require.NoError(t, err)
	require.Len(t, inc.Files, 2)
	assert.True(t, inc.Files[0].Deleted)
	assert.Equal(t, "/a.txt", inc.Files[0].Path)
	assert.Equal(t, "/b.txt", inc.Files[1].Path)
	assert.False(t, inc.Files[1].Deleted)

	// An unparsable cursor falls back to a full listing without tombstones.
	full, err = client.List(ctx, "bogus")
	require.NoError(t, err)
	assert.False(t, full.Incremental)
	require.Len(t, full.Files, 1)
	assert.Equal(t, "/b.txt", full.Files[0].Path)
}

func TestMemoryClient_FetchMissing(t *testing.T) {
	client := NewMemoryClient()
	_, _, err := client.Fetch(context.Background(), "/gone.txt")
	assert.Error(t, err)
}

func TestMemoryClient_InjectedErrors(t *testing.T) {
	client := NewMemoryClient()
	client.Put("/a.txt", []byte("alpha"))

	client.ListErr = errors.New("listing down")
	_, err := client.List(context.Background(), "")
	assert.ErrorContains(t, err, "listing down")

	client.FetchErr = errors.New("fetch down")
	_, _, err = client.Fetch(context.Background(), "/a.txt")
	assert.ErrorContains(t, err, "fetch down")
}

func TestNewDropboxClient_RequiresToken(t *testing.T) {
	_, err := NewDropboxClient("", "")
	assert.Error(t, err)
}
