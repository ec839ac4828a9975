package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/HammerMeetNail/levelup/internal/models"
)

type memUser struct {
	id        string
	username  string
	email     string
	xp        int64
	iconURL   string
	settings  map[string]any
	createdAt time.Time
}

type memRequest struct {
	friendName string
	status     models.RequestStatus
	sentAt     time.Time
}

type edge struct{ owner, friend string }

type memState struct {
	users       map[string]*memUser
	requests    map[edge]memRequest
	friendships map[edge]time.Time
}

func (s *memState) clone() *memState {
	c := &memState{
		users:       make(map[string]*memUser, len(s.users)),
		requests:    make(map[edge]memRequest, len(s.requests)),
		friendships: make(map[edge]time.Time, len(s.friendships)),
	}
	for k, u := range s.users {
		cp := *u
		cp.settings = make(map[string]any, len(u.settings))
		for sk, sv := range u.settings {
			cp.settings[sk] = sv
		}
		c.users[k] = &cp
	}
	for k, v := range s.requests {
		c.requests[k] = v
	}
	for k, v := range s.friendships {
		c.friendships[k] = v
	}
	return c
}

// memDB interprets the service SQL statements against in-memory tables.
type memDB struct {
	mu    sync.Mutex
	state *memState

	// failExec makes the n-th Exec of a statement fail (1-based; 0 means every call).
	failExec  map[string]int
	execCount map[string]int
}

func newMemDB() *memDB {
	return &memDB{
		state: &memState{
			users:       map[string]*memUser{},
			requests:    map[edge]memRequest{},
			friendships: map[edge]time.Time{},
		},
		failExec:  map[string]int{},
		execCount: map[string]int{},
	}
}

func (m *memDB) addUser(id, username string, xp int64, icon string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.users[id] = &memUser{id: id, username: username, xp: xp, iconURL: icon, settings: map[string]any{}, createdAt: time.Now()}
}

func (m *memDB) deleteUser(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state.users, id)
}

func (m *memDB) requestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.requests)
}

func (m *memDB) request(owner, friend string) (memRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.state.requests[edge{owner, friend}]
	return r, ok
}

func (m *memDB) hasFriendship(owner, friend string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.state.friendships[edge{owner, friend}]
	return ok
}

func (m *memDB) xp(id string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.state.users[id]; ok {
		return u.xp
	}
	return -1
}

func (m *memDB) QueryRow(ctx context.Context, sql string, args ...any) Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	return queryRow(m.state, sql, args)
}

func (m *memDB) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return query(m.state, sql, args)
}

func (m *memDB) Exec(ctx context.Context, sql string, args ...any) (CommandTag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injectedFailure(sql); err != nil {
		return nil, err
	}
	return exec(m.state, sql, args)
}

func (m *memDB) injectedFailure(sql string) error {
	m.execCount[sql]++
	n, ok := m.failExec[sql]
	if !ok {
		return nil
	}
	if n == 0 || n == m.execCount[sql] {
		return fmt.Errorf("injected failure")
	}
	return nil
}

func (m *memDB) Begin(ctx context.Context) (Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &memTx{db: m, state: m.state.clone()}, nil
}

// memTx works on a private copy that replaces the shared state on commit.
type memTx struct {
	db    *memDB
	state *memState
	done  bool
}

func (t *memTx) QueryRow(ctx context.Context, sql string, args ...any) Row {
	return queryRow(t.state, sql, args)
}

func (t *memTx) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	return query(t.state, sql, args)
}

func (t *memTx) Exec(ctx context.Context, sql string, args ...any) (CommandTag, error) {
	t.db.mu.Lock()
	err := t.db.injectedFailure(sql)
	t.db.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return exec(t.state, sql, args)
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.state = t.state
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	return nil
}

func str(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case *string:
		if s == nil {
			return ""
		}
		return *s
	case models.RequestStatus:
		return string(s)
	default:
		return fmt.Sprint(v)
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case *int64:
		return *n
	default:
		panic(fmt.Sprintf("memdb: not an integer: %T", v))
	}
}

func userRow(u *memUser) []any {
	return []any{u.id, u.username, u.email, u.xp, u.iconURL, u.settings, u.createdAt, u.createdAt}
}

func sortedUsers(s *memState) []*memUser {
	users := make([]*memUser, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].xp != users[j].xp {
			return users[i].xp > users[j].xp
		}
		return users[i].id < users[j].id
	})
	return users
}

func queryRow(s *memState, sql string, args []any) Row {
	switch sql {
	case sqlInsertProfile:
		id := str(args[0])
		if _, ok := s.users[id]; ok {
			return errRow(pgx.ErrNoRows)
		}
		u := &memUser{id: id, email: str(args[1]), iconURL: str(args[2]), settings: map[string]any{}, createdAt: time.Now()}
		s.users[id] = u
		return rowFromValues(userRow(u)...)
	case sqlSelectProfile:
		u, ok := s.users[str(args[0])]
		if !ok {
			return errRow(pgx.ErrNoRows)
		}
		return rowFromValues(userRow(u)...)
	case sqlSelectProfileByUsername:
		for _, u := range s.users {
			if u.username != "" && u.username == str(args[0]) {
				return rowFromValues(userRow(u)...)
			}
		}
		return errRow(pgx.ErrNoRows)
	case sqlUsernameExists:
		for _, u := range s.users {
			if u.username != "" && u.username == str(args[0]) {
				return rowFromValues(true)
			}
		}
		return rowFromValues(false)
	case sqlAddXP:
		u, ok := s.users[str(args[0])]
		if !ok {
			return errRow(pgx.ErrNoRows)
		}
		u.xp += toInt64(args[1])
		return rowFromValues(u.xp)
	case sqlSelectSettings:
		u, ok := s.users[str(args[0])]
		if !ok {
			return errRow(pgx.ErrNoRows)
		}
		return rowFromValues(u.settings)
	case sqlSelectUsername:
		u, ok := s.users[str(args[0])]
		if !ok {
			return errRow(pgx.ErrNoRows)
		}
		return rowFromValues(u.username)
	case sqlRankByID:
		for i, u := range sortedUsers(s) {
			if u.id == str(args[0]) {
				return rowFromValues(int64(i + 1))
			}
		}
		return errRow(pgx.ErrNoRows)
	case sqlSelectRequestStatus, sqlLockReceivedRequest:
		r, ok := s.requests[edge{str(args[0]), str(args[1])}]
		if !ok {
			return errRow(pgx.ErrNoRows)
		}
		return rowFromValues(r.status)
	case sqlFriendshipExists:
		_, ok := s.friendships[edge{str(args[0]), str(args[1])}]
		return rowFromValues(ok)
	}
	panic("memdb: unexpected QueryRow: " + sql)
}

func query(s *memState, sql string, args []any) (Rows, error) {
	var out [][]any
	switch sql {
	case sqlSearchUsernamePrefix:
		lo, hi, limit := str(args[0]), str(args[1]), int(toInt64(args[2]))
		var matches []*memUser
		for _, u := range s.users {
			if u.username >= lo && u.username < hi {
				matches = append(matches, u)
			}
		}
		sort.Slice(matches, func(i, j int) bool { return matches[i].username < matches[j].username })
		for i, u := range matches {
			if i == limit {
				break
			}
			out = append(out, []any{u.id, u.username, u.iconURL})
		}
	case sqlTopByXP:
		limit := int(toInt64(args[0]))
		for i, u := range sortedUsers(s) {
			if i == limit {
				break
			}
			out = append(out, []any{u.id, u.username, u.xp, u.iconURL})
		}
	case sqlListFriendRequests:
		owner := str(args[0])
		type row struct {
			friend string
			req    memRequest
		}
		var reqs []row
		for k, r := range s.requests {
			if k.owner == owner {
				reqs = append(reqs, row{k.friend, r})
			}
		}
		sort.Slice(reqs, func(i, j int) bool { return reqs[i].req.sentAt.After(reqs[j].req.sentAt) })
		for _, r := range reqs {
			var icon *string
			if u, ok := s.users[r.friend]; ok {
				icon = &u.iconURL
			}
			out = append(out, []any{r.friend, r.req.friendName, r.req.status, r.req.sentAt, icon})
		}
	case sqlListFriends:
		owner, limit := str(args[0]), int(toInt64(args[1]))
		var friends []string
		for k := range s.friendships {
			if k.owner == owner {
				friends = append(friends, k.friend)
			}
		}
		sort.Strings(friends)
		for i, f := range friends {
			if i == limit {
				break
			}
			var name, icon *string
			if u, ok := s.users[f]; ok {
				name, icon = &u.username, &u.iconURL
			}
			out = append(out, []any{f, name, icon})
		}
	default:
		panic("memdb: unexpected Query: " + sql)
	}
	return &fakeRows{rows: out}, nil
}

func exec(s *memState, sql string, args []any) (CommandTag, error) {
	switch sql {
	case sqlUpdateProfile:
		id := str(args[0])
		u, ok := s.users[id]
		if !ok {
			return fakeCommandTag{}, nil
		}
		if name, ok := args[1].(*string); ok && name != nil {
			for _, other := range s.users {
				if other.id != id && other.username == *name && *name != "" {
					return nil, &pgconn.PgError{Code: "23505", ConstraintName: usernameIndexName}
				}
			}
			u.username = *name
		}
		if email, ok := args[2].(*string); ok && email != nil {
			u.email = *email
		}
		if xp, ok := args[3].(*int64); ok && xp != nil {
			u.xp = *xp
		}
		if icon, ok := args[4].(*string); ok && icon != nil {
			u.iconURL = *icon
		}
		if settings, ok := args[5].(map[string]any); ok {
			u.settings = settings
		}
		return fakeCommandTag{rowsAffected: 1}, nil
	case sqlUpdateSettings:
		u, ok := s.users[str(args[0])]
		if !ok {
			return fakeCommandTag{}, nil
		}
		u.settings = args[1].(map[string]any)
		return fakeCommandTag{rowsAffected: 1}, nil
	case sqlUpsertFriendRequest:
		s.requests[edge{str(args[0]), str(args[1])}] = memRequest{
			friendName: str(args[2]),
			status:     models.RequestStatus(str(args[3])),
			sentAt:     args[4].(time.Time),
		}
		return fakeCommandTag{rowsAffected: 1}, nil
	case sqlDeleteFriendRequest:
		k := edge{str(args[0]), str(args[1])}
		if _, ok := s.requests[k]; !ok {
			return fakeCommandTag{}, nil
		}
		delete(s.requests, k)
		return fakeCommandTag{rowsAffected: 1}, nil
	case sqlInsertFriendship:
		k := edge{str(args[0]), str(args[1])}
		if _, ok := s.friendships[k]; ok {
			return fakeCommandTag{}, nil
		}
		s.friendships[k] = args[2].(time.Time)
		return fakeCommandTag{rowsAffected: 1}, nil
	case sqlRepairFriendships:
		var n int64
		for k, at := range s.friendships {
			m := edge{k.friend, k.owner}
			if _, ok := s.friendships[m]; !ok {
				s.friendships[m] = at
				n++
			}
		}
		return fakeCommandTag{rowsAffected: n}, nil
	case sqlDeleteSupersededRequests:
		var n int64
		for k := range s.requests {
			if _, ok := s.friendships[k]; ok {
				delete(s.requests, k)
				n++
			}
		}
		return fakeCommandTag{rowsAffected: n}, nil
	case sqlDeleteOrphanedRequests:
		var orphaned []edge
		for k, r := range s.requests {
			m, ok := s.requests[edge{k.friend, k.owner}]
			if !ok || m.status == r.status {
				orphaned = append(orphaned, k)
			}
		}
		for _, k := range orphaned {
			delete(s.requests, k)
		}
		return fakeCommandTag{rowsAffected: int64(len(orphaned))}, nil
	}
	if strings.TrimSpace(sql) == "" {
		return nil, fmt.Errorf("empty statement")
	}
	panic("memdb: unexpected Exec: " + sql)
}
