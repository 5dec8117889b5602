package certauth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Directory is the user directory collaborator.
type Directory interface {
	GetUserField(ctx context.Context, uid int64, field string) (string, error)
	SetUserField(ctx context.Context, uid int64, field, value string) error
	// GetUidByEmail returns 0 when no user carries the email.
	GetUidByEmail(ctx context.Context, email string) (int64, error)
	Create(ctx context.Context, username, email string) (int64, error)
}

// BindingStore is the persisted CN→uid lookup table. GetField returns
// 0 when the CN is unbound.
type BindingStore interface {
	GetField(ctx context.Context, cn string) (int64, error)
	SetField(ctx context.Context, cn string, uid int64) error
	DeleteField(ctx context.Context, cn string) error
}

// SiteConfig exposes the site configuration service; only the base url
// key is read here.
type SiteConfig interface {
	Get(key string) string
}

// Directory field names. FieldCertCN is the denormalized reverse
// pointer of the binding; the authoritative direction lives in the
// BindingStore.
const (
	FieldCertCN         = "certcn"
	FieldEmailConfirmed = "email:confirmed"
)

// AssociationStatus reports whether a uid has a bound certificate, for
// the account settings page.
type AssociationStatus struct {
	Associated bool
	Name       string
	Icon       string
	BindURL    string
}

// Binder maintains the CN↔uid binding and resolves certificate logins
// to user accounts.
type Binder struct {
	users Directory
	store BindingStore
	site  SiteConfig
	log   *slog.Logger

	mu    sync.Mutex
	locks map[string]*cnLock
}

type cnLock struct {
	mu   sync.Mutex
	refs int
}

func NewBinder(users Directory, store BindingStore, site SiteConfig, log *slog.Logger) *Binder {
	return &Binder{
		users: users,
		store: store,
		site:  site,
		log:   log,
		locks: make(map[string]*cnLock),
	}
}

// lockCN serializes the lookup-then-create sequence per CN, so two
// concurrent first logins for one certificate cannot both create an
// account. Distinct CNs proceed fully in parallel.
func (b *Binder) lockCN(cn string) func() {
	b.mu.Lock()
	l, ok := b.locks[cn]
	if !ok {
		l = &cnLock{}
		b.locks[cn] = l
	}
	l.refs++
	b.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		b.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(b.locks, cn)
		}
		b.mu.Unlock()
	}
}

// Login resolves a verified certificate identity to a uid.
//
// An already-bound CN returns its uid unchanged, with no directory
// writes. A session uid takes precedence over lookup and create: the
// CN is bound to the session's account (the link-certificate flow).
// Otherwise the login merges into an account matching the certificate
// email, or creates a fresh one.
func (b *Binder) Login(ctx context.Context, id *VerifiedIdentity, sessionUID int64) (int64, error) {
	cn := id.SubjectCN
	unlock := b.lockCN(cn)
	defer unlock()

	boundUID, err := b.store.GetField(ctx, cn)
	if err != nil {
		return 0, fmt.Errorf("binder: lookup binding for CN: %w", err)
	}

	if sessionUID > 0 {
		return b.linkToSession(ctx, cn, boundUID, sessionUID)
	}

	if boundUID > 0 {
		return boundUID, nil
	}

	username := deriveDisplayName(id.GivenName, id.Surname)

	if id.Email != "" {
		uid, err := b.users.GetUidByEmail(ctx, id.Email)
		if err != nil {
			return 0, fmt.Errorf("binder: lookup user by email: %w", err)
		}
		if uid > 0 {
			// Existing account with the certificate's email: merge.
			// The account may already carry a binding for a different
			// certificate; there is no reassociation flow, so that
			// fails closed instead of overwriting.
			existingCN, err := b.users.GetUserField(ctx, uid, FieldCertCN)
			if err != nil {
				return 0, fmt.Errorf("binder: read certcn field: %w", err)
			}
			if existingCN != "" && existingCN != cn {
				b.log.Error("account matching certificate email already bound to another certificate",
					"uid", uid)
				return 0, ErrIdentityConflict
			}
			if err := b.bind(ctx, cn, uid); err != nil {
				return 0, err
			}
			return uid, nil
		}
	}

	uid, err := b.users.Create(ctx, username, id.Email)
	if err != nil {
		return 0, fmt.Errorf("binder: create user: %w", err)
	}
	if err := b.bind(ctx, cn, uid); err != nil {
		return 0, err
	}
	// The SAN email on these certificates is CA-attested, so the new
	// account starts with a confirmed address.
	if err := b.users.SetUserField(ctx, uid, FieldEmailConfirmed, "1"); err != nil {
		return 0, fmt.Errorf("binder: confirm email: %w", err)
	}
	b.log.Info("created user for certificate login", "uid", uid, "subject_cn", cn)
	return uid, nil
}

// linkToSession binds cn to an already-authenticated account. Existing
// bindings on either side must match exactly; there is no
// reassociation flow, so a mismatch fails closed.
func (b *Binder) linkToSession(ctx context.Context, cn string, boundUID, sessionUID int64) (int64, error) {
	if boundUID > 0 && boundUID != sessionUID {
		b.log.Error("certificate CN already bound to another account",
			"subject_cn", cn, "bound_uid", boundUID, "session_uid", sessionUID)
		return 0, ErrIdentityConflict
	}
	existingCN, err := b.users.GetUserField(ctx, sessionUID, FieldCertCN)
	if err != nil {
		return 0, fmt.Errorf("binder: read certcn field: %w", err)
	}
	if existingCN != "" && existingCN != cn {
		b.log.Error("account already bound to another certificate",
			"session_uid", sessionUID)
		return 0, ErrIdentityConflict
	}
	if boundUID == sessionUID && existingCN == cn {
		return sessionUID, nil
	}
	if err := b.bind(ctx, cn, sessionUID); err != nil {
		return 0, err
	}
	return sessionUID, nil
}

// bind persists the CN→uid mapping, then the denormalized reverse
// pointer. A crash in between leaves a CN without reverse pointer,
// which is recoverable; it can never leave two uids for one CN.
func (b *Binder) bind(ctx context.Context, cn string, uid int64) error {
	if err := b.store.SetField(ctx, cn, uid); err != nil {
		return fmt.Errorf("binder: persist binding: %w", err)
	}
	if err := b.users.SetUserField(ctx, uid, FieldCertCN, cn); err != nil {
		return fmt.Errorf("binder: persist certcn field: %w", err)
	}
	return nil
}

// GetAssociation reports the binding state of uid for the account
// settings page, with the url to initiate binding when unbound.
func (b *Binder) GetAssociation(ctx context.Context, uid int64) (AssociationStatus, error) {
	cn, err := b.users.GetUserField(ctx, uid, FieldCertCN)
	if err != nil {
		return AssociationStatus{}, fmt.Errorf("binder: read certcn field: %w", err)
	}
	if cn != "" {
		return AssociationStatus{
			Associated: true,
			Name:       ProviderName,
			Icon:       ProviderIcon,
		}, nil
	}
	return AssociationStatus{
		Associated: false,
		Name:       ProviderName,
		Icon:       ProviderIcon,
		BindURL:    b.site.Get("url") + "/auth/client-cert",
	}, nil
}

// DeleteUserData removes uid's binding when the account is deleted.
// An account that never had a binding is a successful no-op.
func (b *Binder) DeleteUserData(ctx context.Context, uid int64) (int64, error) {
	cn, err := b.users.GetUserField(ctx, uid, FieldCertCN)
	if err != nil {
		b.log.Error("could not read cert CN for account deletion", "uid", uid, "error", err)
		return 0, fmt.Errorf("binder: read certcn field: %w", err)
	}
	if cn == "" {
		return uid, nil
	}
	if err := b.store.DeleteField(ctx, cn); err != nil {
		b.log.Error("could not remove cert CN binding", "uid", uid, "error", err)
		return 0, fmt.Errorf("binder: delete binding: %w", err)
	}
	// Clear the reverse pointer too, so the association page and the
	// link flow don't act on a binding that no longer exists.
	if err := b.users.SetUserField(ctx, uid, FieldCertCN, ""); err != nil {
		b.log.Error("could not clear cert CN field", "uid", uid, "error", err)
		return 0, fmt.Errorf("binder: clear certcn field: %w", err)
	}
	return uid, nil
}

// deriveDisplayName builds "Given Surname" with each part folded to
// uppercase first rune, lowercase remainder. ID-card DNs arrive fully
// uppercased ("MARI-LIIS" "MÄNNIK" becomes "Mari-liis Männik").
func deriveDisplayName(givenName, surname string) string {
	return strings.TrimSpace(foldName(givenName) + " " + foldName(surname))
}

func foldName(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return ""
	}
	return strings.ToUpper(string(r[0])) + strings.ToLower(string(r[1:]))
}
