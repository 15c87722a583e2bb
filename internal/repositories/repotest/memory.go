// Package repotest 提供内存版仓储实现，供服务层测试使用
package repotest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/3Eeeecho/go-tgdisk/internal/models"
	"github.com/3Eeeecho/go-tgdisk/internal/pkg/xerr"
	"github.com/3Eeeecho/go-tgdisk/internal/repositories"
)

type chunkKey struct {
	fileID uint64
	index  int
}

type tables struct {
	files    map[uint64]models.File
	refs     map[chunkKey]models.ChunkRef
	sessions map[uint64]models.UploadSession // key: session id
	users    map[uint64]models.User
	shares   map[uint64]models.ShareLink
	folders  map[uint64]models.Folder
}

func (t *tables) clone() *tables {
	c := &tables{
		files:    make(map[uint64]models.File, len(t.files)),
		refs:     make(map[chunkKey]models.ChunkRef, len(t.refs)),
		sessions: make(map[uint64]models.UploadSession, len(t.sessions)),
		users:    make(map[uint64]models.User, len(t.users)),
		shares:   make(map[uint64]models.ShareLink, len(t.shares)),
		folders:  make(map[uint64]models.Folder, len(t.folders)),
	}
	for k, v := range t.files {
		c.files[k] = v
	}
	for k, v := range t.refs {
		c.refs[k] = v
	}
	for k, v := range t.sessions {
		v.ReceivedChunks = append(models.ChunkIndexSet(nil), v.ReceivedChunks...)
		c.sessions[k] = v
	}
	for k, v := range t.users {
		c.users[k] = v
	}
	for k, v := range t.shares {
		c.shares[k] = v
	}
	for k, v := range t.folders {
		c.folders[k] = v
	}
	return c
}

// DB 内存数据库，事务串行执行并在出错时回滚
type DB struct {
	txMu   sync.Mutex
	mu     sync.Mutex
	t      *tables
	nextID uint64
	Now    func() time.Time

	store *repositories.Store
}

func New() *DB {
	db := &DB{
		t: &tables{
			files:    map[uint64]models.File{},
			refs:     map[chunkKey]models.ChunkRef{},
			sessions: map[uint64]models.UploadSession{},
			users:    map[uint64]models.User{},
			shares:   map[uint64]models.ShareLink{},
			folders:  map[uint64]models.Folder{},
		},
		Now: time.Now,
	}
	db.store = &repositories.Store{
		Files:    &fileRepo{db},
		Sessions: &sessionRepo{db},
		Users:    &userRepo{db},
		Shares:   &shareRepo{db},
		Folders:  &folderRepo{db},
	}
	return db
}

// Store 返回绑定到该内存库的仓储集合
func (db *DB) Store() *repositories.Store {
	return db.store
}

func (db *DB) WithTransaction(ctx context.Context, fn func(tx *repositories.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.Lock()
	snapshot := db.t.clone()
	db.mu.Unlock()

	if err := fn(db.store); err != nil {
		db.mu.Lock()
		db.t = snapshot
		db.mu.Unlock()
		return err
	}
	return nil
}

var _ repositories.TransactionManager = (*DB)(nil)

func (db *DB) id() uint64 {
	db.nextID++
	return db.nextID
}

// --- 测试辅助 ---

func (db *DB) PutUser(u models.User) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.t.users[u.ID] = u
}

func (db *DB) User(id uint64) models.User {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.t.users[id]
}

func (db *DB) PutFolder(f models.Folder) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.t.folders[f.ID] = f
}

// PutFile 直接写入文件和分片，ID 为 0 时自动分配
func (db *DB) PutFile(f models.File) uint64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	if f.ID == 0 {
		f.ID = db.id()
	} else if f.ID > db.nextID {
		db.nextID = f.ID
	}
	for _, r := range f.ChunkRefs {
		r.FileID = f.ID
		db.t.refs[chunkKey{f.ID, r.ChunkIndex}] = r
	}
	f.ChunkRefs = nil
	db.t.files[f.ID] = f
	return f.ID
}

func (db *DB) File(id uint64) (models.File, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	f, ok := db.t.files[id]
	return f, ok
}

func (db *DB) Refs(fileID uint64) []models.ChunkRef {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.refsLocked(fileID)
}

func (db *DB) refsLocked(fileID uint64) []models.ChunkRef {
	var out []models.ChunkRef
	for k, r := range db.t.refs {
		if k.fileID == fileID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out
}

func (db *DB) SessionByFile(fileID uint64) (models.UploadSession, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, s := range db.t.sessions {
		if s.FileID == fileID {
			return s, true
		}
	}
	return models.UploadSession{}, false
}

func (db *DB) Share(id uint64) models.ShareLink {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.t.shares[id]
}

// --- files ---

type fileRepo struct{ db *DB }

func (r *fileRepo) Create(_ context.Context, f *models.File) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	f.ID = r.db.id()
	f.CreatedAt = r.db.Now()
	f.UpdatedAt = f.CreatedAt
	stored := *f
	stored.ChunkRefs = nil
	r.db.t.files[f.ID] = stored
	return nil
}

func (r *fileRepo) FindByID(_ context.Context, id uint64) (*models.File, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	f, ok := r.db.t.files[id]
	if !ok {
		return nil, xerr.ErrFileNotFound
	}
	return &f, nil
}

func (r *fileRepo) FindByIDAndOwner(ctx context.Context, id, ownerID uint64) (*models.File, error) {
	f, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.OwnerID != ownerID {
		return nil, xerr.ErrFileNotFound
	}
	return f, nil
}

func applyFileFields(f *models.File, fields map[string]any) {
	for k, v := range fields {
		switch k {
		case "status":
			f.Status = v.(string)
		case "is_trashed":
			f.IsTrashed = v.(bool)
		case "trashed_at":
			f.TrashedAt = timePtr(v)
		case "deleted_at":
			f.DeletedAt = timePtr(v)
		case "checksum":
			f.Checksum = v.(string)
		case "storage_token_enc":
			f.StorageTokenEnc = v.(string)
		case "storage_chat_id":
			f.StorageChatID = v.(string)
		default:
			panic("repotest: unsupported file field " + k)
		}
	}
}

func timePtr(v any) *time.Time {
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		return &t
	case *time.Time:
		return t
	default:
		panic("repotest: unsupported time value")
	}
}

func (r *fileRepo) UpdateFields(_ context.Context, id uint64, fields map[string]any) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	f, ok := r.db.t.files[id]
	if !ok {
		return nil
	}
	applyFileFields(&f, fields)
	f.UpdatedAt = r.db.Now()
	r.db.t.files[id] = f
	return nil
}

func (r *fileRepo) Delete(_ context.Context, id uint64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	delete(r.db.t.files, id)
	return nil
}

func (r *fileRepo) TransitionStatus(_ context.Context, id uint64, from []string, fields map[string]any) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	f, ok := r.db.t.files[id]
	if !ok || !contains(from, f.Status) {
		return false, nil
	}
	applyFileFields(&f, fields)
	r.db.t.files[id] = f
	return true, nil
}

func (r *fileRepo) MarkDeleted(_ context.Context, id uint64, at time.Time) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	f, ok := r.db.t.files[id]
	if !ok || f.DeletedAt != nil {
		return false, nil
	}
	f.DeletedAt = &at
	f.IsTrashed = true
	f.Status = models.FileStatusFailed
	r.db.t.files[id] = f
	return true, nil
}

func (r *fileRepo) InsertChunkRef(_ context.Context, ref *models.ChunkRef) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	k := chunkKey{ref.FileID, ref.ChunkIndex}
	if _, exists := r.db.t.refs[k]; exists {
		return false, nil
	}
	ref.ID = r.db.id()
	r.db.t.refs[k] = *ref
	return true, nil
}

func (r *fileRepo) ListChunkRefs(_ context.Context, fileID uint64) ([]models.ChunkRef, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.refsLocked(fileID), nil
}

func (r *fileRepo) CountChunkRefs(ctx context.Context, fileID uint64) (int64, error) {
	refs, _ := r.ListChunkRefs(ctx, fileID)
	return int64(len(refs)), nil
}

func (r *fileRepo) DeleteChunkRefs(_ context.Context, fileID uint64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for k := range r.db.t.refs {
		if k.fileID == fileID {
			delete(r.db.t.refs, k)
		}
	}
	return nil
}

// --- upload sessions ---

type sessionRepo struct{ db *DB }

func (r *sessionRepo) Create(_ context.Context, s *models.UploadSession) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.t.sessions {
		if existing.FileID == s.FileID || existing.UploadID == s.UploadID {
			return xerr.ErrConflict
		}
	}
	s.ID = r.db.id()
	stored := *s
	stored.ReceivedChunks = append(models.ChunkIndexSet(nil), s.ReceivedChunks...)
	r.db.t.sessions[s.ID] = stored
	return nil
}

func (r *sessionRepo) FindByFileID(_ context.Context, fileID uint64) (*models.UploadSession, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, s := range r.db.t.sessions {
		if s.FileID == fileID {
			s.ReceivedChunks = append(models.ChunkIndexSet(nil), s.ReceivedChunks...)
			return &s, nil
		}
	}
	return nil, xerr.ErrUploadSessionNotFound
}

func (r *sessionRepo) FindByFileIDForUpdate(ctx context.Context, fileID uint64) (*models.UploadSession, error) {
	return r.FindByFileID(ctx, fileID)
}

func (r *sessionRepo) Save(_ context.Context, s *models.UploadSession) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	stored := *s
	stored.ReceivedChunks = append(models.ChunkIndexSet(nil), s.ReceivedChunks...)
	r.db.t.sessions[s.ID] = stored
	return nil
}

func (r *sessionRepo) TransitionStatus(_ context.Context, id uint64, from []string, to string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.t.sessions[id]
	if !ok || !contains(from, s.Status) {
		return false, nil
	}
	s.Status = to
	r.db.t.sessions[id] = s
	return true, nil
}

func (r *sessionRepo) ListExpired(_ context.Context, now time.Time, limit int) ([]models.UploadSession, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.UploadSession
	for _, s := range r.db.t.sessions {
		if s.IsOpen() && s.IsExpired(now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- users ---

type userRepo struct{ db *DB }

func (r *userRepo) FindByID(_ context.Context, id uint64) (*models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.t.users[id]
	if !ok {
		return nil, xerr.ErrUserNotFound
	}
	return &u, nil
}

func (r *userRepo) GetOrCreate(_ context.Context, id uint64, defaultQuota int64) (*models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.t.users[id]
	if !ok {
		u = models.User{ID: id, QuotaBytes: defaultQuota}
		r.db.t.users[id] = u
	}
	return &u, nil
}

func (r *userRepo) AddUsedBytes(_ context.Context, id uint64, delta int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.t.users[id]
	if !ok {
		return xerr.ErrUserNotFound
	}
	u.UsedBytes += delta
	r.db.t.users[id] = u
	return nil
}

func (r *userRepo) SubUsedBytes(_ context.Context, id uint64, delta int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.t.users[id]
	if !ok {
		return nil
	}
	u.UsedBytes -= delta
	if u.UsedBytes < 0 {
		u.UsedBytes = 0
	}
	r.db.t.users[id] = u
	return nil
}

func (r *userRepo) SaveTelegramConfig(_ context.Context, id uint64, tokenEnc, chatID string, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.t.users[id]
	if !ok {
		return xerr.ErrUserNotFound
	}
	u.TelegramBotTokenEnc = tokenEnc
	u.TelegramStorageChatID = chatID
	u.TelegramConfiguredAt = &at
	r.db.t.users[id] = u
	return nil
}

// --- shares ---

type shareRepo struct{ db *DB }

func (r *shareRepo) Create(_ context.Context, s *models.ShareLink) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.t.shares {
		if existing.Token == s.Token {
			return xerr.ErrConflict
		}
	}
	s.ID = r.db.id()
	s.CreatedAt = r.db.Now()
	r.db.t.shares[s.ID] = *s
	return nil
}

func (r *shareRepo) FindByToken(_ context.Context, token string) (*models.ShareLink, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, s := range r.db.t.shares {
		if s.Token == token {
			return &s, nil
		}
	}
	return nil, xerr.ErrShareNotFound
}

func (r *shareRepo) FindByIDAndOwner(_ context.Context, id, ownerID uint64) (*models.ShareLink, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.t.shares[id]
	if !ok || s.OwnerID != ownerID {
		return nil, xerr.ErrShareNotFound
	}
	return &s, nil
}

func (r *shareRepo) ListByFile(_ context.Context, ownerID, fileID uint64) ([]models.ShareLink, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.ShareLink
	for _, s := range r.db.t.shares {
		if s.OwnerID == ownerID && s.FileID == fileID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *shareRepo) IncrementAccess(_ context.Context, id uint64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.t.shares[id]
	if ok {
		s.AccessCount++
		r.db.t.shares[id] = s
	}
	return nil
}

func (r *shareRepo) Revoke(_ context.Context, id uint64, at time.Time) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.t.shares[id]
	if !ok || s.RevokedAt != nil {
		return false, nil
	}
	s.RevokedAt = &at
	r.db.t.shares[id] = s
	return true, nil
}

func (r *shareRepo) RevokeByFile(_ context.Context, fileID uint64, at time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for id, s := range r.db.t.shares {
		if s.FileID == fileID && s.RevokedAt == nil {
			t := at
			s.RevokedAt = &t
			r.db.t.shares[id] = s
			n++
		}
	}
	return n, nil
}

// --- folders ---

type folderRepo struct{ db *DB }

func (r *folderRepo) Exists(_ context.Context, ownerID, folderID uint64) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	f, ok := r.db.t.folders[folderID]
	return ok && f.OwnerID == ownerID && !f.IsTrashed, nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
