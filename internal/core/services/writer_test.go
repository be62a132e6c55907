package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/adapters/driven/storage/blob"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/adapters/driven/storage/memory"
	"github.com/xerifegomes/b2drop-cloudflare-importer/internal/core/domain"
)

var writerNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type writerFixture struct {
	store  *memory.ObjectStore
	backup *memory.BackupSink
	writer *ProductWriter
	clock  *time.Time
}

func newWriterFixture(t *testing.T, cfg WriterConfig) *writerFixture {
	t.Helper()
	now := writerNow
	f := &writerFixture{
		store:  memory.NewObjectStore(nil),
		backup: memory.NewBackupSink(),
		clock:  &now,
	}
	cfg.Clock = func() time.Time { return *f.clock }
	f.writer = NewProductWriter(f.store, f.backup, cfg)
	return f
}

func TestStoreProduct_CollisionPreservesCreatedAt(t *testing.T) {
	f := newWriterFixture(t, WriterConfig{Protection: true})
	ctx := context.Background()

	first := &domain.ProductRecord{Name: "Produto Teste Colisão", Price: decimal.NewFromInt(100)}
	outcome, err := f.writer.StoreProduct(ctx, first, "test_collision")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCreated, outcome)
	assert.Equal(t, 1, first.UpdateCount)
	require.NotNil(t, first.CreatedAt)
	createdAt := *first.CreatedAt

	// Later in the same millisecond bucket.
	*f.clock = writerNow.Add(500 * time.Microsecond)
	second := &domain.ProductRecord{
		Name:        "Produto Teste Colisão",
		Price:       decimal.NewFromInt(100),
		Description: "Descrição modificada",
	}
	outcome, err = f.writer.StoreProduct(ctx, second, "test_collision")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUpdated, outcome)
	assert.Equal(t, 2, second.UpdateCount)
	require.NotNil(t, second.CreatedAt)
	assert.True(t, createdAt.Equal(*second.CreatedAt))
	assert.Equal(t, first.ProductID, second.ProductID)

	stored, err := f.store.Get(ctx, second.ProductID)
	require.NoError(t, err)
	assert.Equal(t, "Descrição modificada", stored.Description)
	assert.Equal(t, 2, stored.UpdateCount)
	assert.True(t, createdAt.Equal(*stored.CreatedAt))
	assert.Equal(t, "test_collision", stored.Source)
	require.NotNil(t, stored.LastUpdated)

	versions := f.backup.Versions()
	require.Len(t, versions, 1)
	assert.Equal(t, second.ProductID, versions[0].Key)
	assert.Equal(t, 1, versions[0].Old.UpdateCount)
	assert.Equal(t, 2, versions[0].Updated.UpdateCount)
}

func TestStoreProduct_NewBucketIsNewEntry(t *testing.T) {
	f := newWriterFixture(t, WriterConfig{})
	ctx := context.Background()

	first := &domain.ProductRecord{Name: "Caneca"}
	_, err := f.writer.StoreProduct(ctx, first, "b2drop")
	require.NoError(t, err)

	*f.clock = writerNow.Add(time.Second)
	second := &domain.ProductRecord{Name: "Caneca"}
	outcome, err := f.writer.StoreProduct(ctx, second, "b2drop")
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeCreated, outcome)
	assert.NotEqual(t, first.ProductID, second.ProductID)
	assert.Equal(t, 2, f.store.Len())
}

func TestStoreProduct_NoVersionWithoutProtection(t *testing.T) {
	f := newWriterFixture(t, WriterConfig{Protection: false})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.writer.StoreProduct(ctx, &domain.ProductRecord{Name: "Mouse"}, "b2drop")
		require.NoError(t, err)
	}
	assert.Empty(t, f.backup.Versions())
}

func TestStoreProduct_ExistingWithoutCreatedAt(t *testing.T) {
	f := newWriterFixture(t, WriterConfig{})
	ctx := context.Background()

	key := f.writer.ids.Generate("Mouse", "b2drop", domain.IdentityContextOf(&domain.ProductRecord{}))
	require.NoError(t, f.store.Put(ctx, key, &domain.ProductRecord{Name: "Mouse", UpdateCount: 4}))

	rec := &domain.ProductRecord{Name: "Mouse"}
	outcome, err := f.writer.StoreProduct(ctx, rec, "b2drop")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUpdated, outcome)
	assert.Equal(t, 5, rec.UpdateCount)
	require.NotNil(t, rec.CreatedAt)
	assert.True(t, writerNow.Equal(*rec.CreatedAt))
}

func TestStoreProduct_Validation(t *testing.T) {
	f := newWriterFixture(t, WriterConfig{})

	_, err := f.writer.StoreProduct(context.Background(), &domain.ProductRecord{Name: "   "}, "b2drop")
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Zero(t, f.store.Len())
}

func TestStoreProduct_StoreFailures(t *testing.T) {
	boom := errors.New("connection reset")

	t.Run("get", func(t *testing.T) {
		f := newWriterFixture(t, WriterConfig{})
		f.store.InjectFailures(memory.Failures{Get: boom})

		_, err := f.writer.StoreProduct(context.Background(), &domain.ProductRecord{Name: "x"}, "b2drop")
		assert.ErrorIs(t, err, domain.ErrTransientStore)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("put", func(t *testing.T) {
		f := newWriterFixture(t, WriterConfig{})
		f.store.InjectFailures(memory.Failures{Put: func(string, *domain.ProductRecord) error { return boom }})

		_, err := f.writer.StoreProduct(context.Background(), &domain.ProductRecord{Name: "x"}, "b2drop")
		assert.ErrorIs(t, err, domain.ErrTransientStore)
		assert.Zero(t, f.store.Len())
	})
}

func TestStoreProduct_ImageUpload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "broken.jpg") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg"))
	}))
	defer server.Close()

	store := memory.NewObjectStore(blob.NewFetcher(server.Client()))
	writer := NewProductWriter(store, nil, WriterConfig{
		UploadImages: true,
		Clock:        func() time.Time { return writerNow },
	})
	ctx := context.Background()

	ok := &domain.ProductRecord{Name: "Fone JBL", ImageURL: server.URL + "/fone.jpg"}
	_, err := writer.StoreProduct(ctx, ok, "b2drop")
	require.NoError(t, err)
	assert.Equal(t, "blob://images/Fone_JBL.jpeg", ok.ImageR2URL)

	broken := &domain.ProductRecord{Name: "Caneca", ImageURL: server.URL + "/broken.jpg"}
	_, err = writer.StoreProduct(ctx, broken, "b2drop")
	require.NoError(t, err)
	assert.Empty(t, broken.ImageR2URL)

	stored, err := store.Get(ctx, broken.ProductID)
	require.NoError(t, err)
	assert.Empty(t, stored.ImageR2URL)

	// An existing copy is never uploaded again.
	kept := &domain.ProductRecord{Name: "Mouse", ImageURL: server.URL + "/broken.jpg", ImageR2URL: "https://cdn/x.jpg"}
	_, err = writer.StoreProduct(ctx, kept, "b2drop")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/x.jpg", kept.ImageR2URL)
}

func TestStoreProductsBatch_FailureIsolation(t *testing.T) {
	f := newWriterFixture(t, WriterConfig{})
	records := []domain.ProductRecord{
		{Name: "Fone JBL"},
		{Name: "Caneca"},
		{Name: ""},
		{Name: "Mouse"},
		{Name: "Teclado"},
	}

	result := f.writer.StoreProductsBatch(context.Background(), records, "b2drop")

	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 4, result.Successful)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 4, result.NewProducts)
	assert.Zero(t, result.UpdatedProducts)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "record 2")
	assert.InDelta(t, 80.0, result.SuccessRate(), 1e-9)
	assert.Equal(t, 4, f.store.Len())
}

func TestStoreProductsBatch_UpdatesAndSnapshot(t *testing.T) {
	f := newWriterFixture(t, WriterConfig{})
	ctx := context.Background()
	require.NoError(t, f.store.Put(ctx, "other_abc_000000", &domain.ProductRecord{Name: "Elsewhere"}))

	records := []domain.ProductRecord{{Name: "Caneca"}, {Name: "Caneca"}, {Name: "Mouse"}}
	result := f.writer.StoreProductsBatch(ctx, records, "b2drop")

	assert.Equal(t, 3, result.Successful)
	assert.Equal(t, 2, result.NewProducts)
	assert.Equal(t, 1, result.UpdatedProducts)
	assert.Equal(t, "memory://snapshots/1", result.BackupLocator)
	assert.Equal(t, 2, records[1].UpdateCount)

	snapshots := f.backup.Snapshots()
	require.Len(t, snapshots, 1)
	assert.Len(t, snapshots[0], 2)
	for _, r := range snapshots[0] {
		assert.Equal(t, "b2drop", r.Source)
	}
}

func TestStoreProductsBatch_SnapshotIsCapped(t *testing.T) {
	f := newWriterFixture(t, WriterConfig{SampleSize: 2})
	records := []domain.ProductRecord{{Name: "a"}, {Name: "b"}, {Name: "c"}}

	result := f.writer.StoreProductsBatch(context.Background(), records, "b2drop")

	require.NotEmpty(t, result.BackupLocator)
	assert.Len(t, f.backup.Snapshots()[0], 2)
}

func TestStoreProductsBatch_SnapshotKeepsBatchWrites(t *testing.T) {
	f := newWriterFixture(t, WriterConfig{})
	ctx := context.Background()
	for i := 0; i < 150; i++ {
		key := fmt.Sprintf("b2drop_%016d_000000", i)
		require.NoError(t, f.store.Put(ctx, key, &domain.ProductRecord{Name: fmt.Sprintf("Old %d", i)}))
	}

	records := []domain.ProductRecord{{Name: "Fresh Product"}}
	result := f.writer.StoreProductsBatch(ctx, records, "b2drop")
	require.Equal(t, 1, result.Successful)

	snapshots := f.backup.Snapshots()
	require.Len(t, snapshots, 1)
	require.Len(t, snapshots[0], DefaultSnapshotSampleSize)
	assert.Equal(t, records[0].ProductID, snapshots[0][0].ProductID)
	assert.Equal(t, "Fresh Product", snapshots[0][0].Name)
}

func TestStoreProductsBatch_SnapshotSkipsLongerSourceNames(t *testing.T) {
	f := newWriterFixture(t, WriterConfig{})
	ctx := context.Background()
	require.NoError(t, f.store.Put(ctx, "b2drop_legacy_0123456789abcdef_000000", &domain.ProductRecord{Name: "Legacy"}))

	result := f.writer.StoreProductsBatch(ctx, []domain.ProductRecord{{Name: "Caneca"}}, "b2drop")
	require.Equal(t, 1, result.Successful)

	snapshots := f.backup.Snapshots()
	require.Len(t, snapshots, 1)
	require.Len(t, snapshots[0], 1)
	assert.Equal(t, "Caneca", snapshots[0][0].Name)
}

func TestOwnedBy(t *testing.T) {
	tests := []struct {
		key    string
		source string
		want   bool
	}{
		{"b2drop_0123456789abcdef_000042", "b2drop", true},
		{"google_trending_0123456789abcdef_000042", "google_trending", true},
		{"b2drop_legacy_0123456789abcdef_000042", "b2drop", false},
		{"shopify_0123456789abcdef_000042", "b2drop", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, ownedBy(tt.key, tt.source))
		})
	}
}

func TestStoreProductsBatch_BackupFailureIsNotFatal(t *testing.T) {
	f := newWriterFixture(t, WriterConfig{})
	f.backup.FailWith(errors.New("disk full"))

	result := f.writer.StoreProductsBatch(context.Background(), []domain.ProductRecord{{Name: "Caneca"}}, "b2drop")

	assert.Equal(t, 1, result.Successful)
	assert.Zero(t, result.Failed)
	assert.Empty(t, result.BackupLocator)
	assert.Empty(t, result.Errors)
}

func TestStoreProductsBatch_NoSnapshotWhenNothingStored(t *testing.T) {
	f := newWriterFixture(t, WriterConfig{})

	result := f.writer.StoreProductsBatch(context.Background(), []domain.ProductRecord{{Name: ""}}, "b2drop")

	assert.Equal(t, 1, result.Failed)
	assert.Empty(t, f.backup.Snapshots())
}

func TestStoreProductsBatch_TransientFailureContinues(t *testing.T) {
	f := newWriterFixture(t, WriterConfig{})
	f.store.InjectFailures(memory.Failures{Put: func(_ string, r *domain.ProductRecord) error {
		if r.Name == "Caneca" {
			return errors.New("503")
		}
		return nil
	}})

	records := []domain.ProductRecord{{Name: "Fone"}, {Name: "Caneca"}, {Name: "Mouse"}}
	result := f.writer.StoreProductsBatch(context.Background(), records, "b2drop")

	assert.Equal(t, 2, result.Successful)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Caneca")
}

func TestStoreProductsBatch_Cancelled(t *testing.T) {
	f := newWriterFixture(t, WriterConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records := []domain.ProductRecord{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	result := f.writer.StoreProductsBatch(ctx, records, "b2drop")

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 3, result.Failed)
	assert.Zero(t, result.Successful)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "3 records left")
	assert.Zero(t, f.store.Len())
}

func TestStoreProductsBatch_Empty(t *testing.T) {
	f := newWriterFixture(t, WriterConfig{})

	result := f.writer.StoreProductsBatch(context.Background(), nil, "b2drop")

	assert.Zero(t, result.Total)
	assert.NotNil(t, result.Errors)
	assert.Empty(t, f.backup.Snapshots())
}

func TestStatistics(t *testing.T) {
	f := newWriterFixture(t, WriterConfig{})
	ctx := context.Background()
	records := []domain.ProductRecord{
		{Name: "Fone", Category: "Electronics", Price: decimal.RequireFromString("200")},
		{Name: "Mouse", Category: "Electronics", Price: decimal.RequireFromString("100")},
		{Name: "Caneca", Price: decimal.Zero},
	}
	f.writer.StoreProductsBatch(ctx, records, "b2drop")
	require.NoError(t, f.store.Put(ctx, "b2drop_blank", &domain.ProductRecord{}))

	stats, err := f.writer.Statistics(ctx, "b2drop_", 100)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, map[string]int{"Electronics": 2, domain.DefaultCategory: 1}, stats.Categories)
	assert.InDelta(t, 150.0, stats.AveragePrice, 1e-9)
	assert.InDelta(t, 100.0, stats.MinPrice, 1e-9)
	assert.InDelta(t, 200.0, stats.MaxPrice, 1e-9)

	f.store.InjectFailures(memory.Failures{List: errors.New("down")})
	_, err = f.writer.Statistics(ctx, "b2drop_", 100)
	assert.ErrorIs(t, err, domain.ErrTransientStore)
}
