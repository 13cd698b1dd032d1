// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/authgate/internal/auth"
	authpg "github.com/holomush/authgate/internal/auth/postgres"
)

type outbox struct {
	mu   sync.Mutex
	sent []auth.Email
}

func (o *outbox) Send(_ context.Context, email auth.Email) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, email)
	return nil
}

func (o *outbox) lastKey() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	Expect(o.sent).NotTo(BeEmpty())
	key, _ := o.sent[len(o.sent)-1].Data["key"].(string)
	return key
}

var _ = Describe("Repositories", func() {
	var (
		repos  *authpg.Repositories
		hasher *auth.Argon2idHasher
	)

	BeforeEach(func() {
		truncate()
		repos = authpg.NewRepositories(pool)

		var err error
		hasher, err = auth.NewArgon2idHasherWithParams(auth.Argon2Params{Time: 1, Memory: 1024, Threads: 1, SaltLen: 16, KeyLen: 32})
		Expect(err).NotTo(HaveOccurred())
	})

	newActor := func(username string) *auth.Actor {
		hash, err := hasher.Hash("hunter22")
		Expect(err).NotTo(HaveOccurred())
		actor, err := auth.NewActor(username, username+"@example.com", hash, []string{"player"})
		Expect(err).NotTo(HaveOccurred())
		Expect(repos.Actors.Create(suiteCtx, actor)).To(Succeed())
		return actor
	}

	Describe("ActorRepository", func() {
		It("round-trips an actor", func() {
			actor := newActor("alice")

			got, err := repos.Actors.GetByUsername(suiteCtx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(actor.ID))
			Expect(got.Email).To(Equal("alice@example.com"))
			Expect(got.Roles).To(ConsistOf("player"))
			Expect(got.Active).To(BeTrue())
			Expect(got.Reset).To(BeNil())
		})

		It("rejects a duplicate username", func() {
			newActor("alice")
			hash, err := hasher.Hash("x")
			Expect(err).NotTo(HaveOccurred())
			dup, err := auth.NewActor("alice", "other@example.com", hash, nil)
			Expect(err).NotTo(HaveOccurred())

			err = repos.Actors.Create(suiteCtx, dup)
			Expect(err).To(HaveOccurred())
			Expect(auth.Code(err)).To(Equal(auth.CodeActorConflict))
		})

		It("reports unknown usernames as not found", func() {
			_, err := repos.Actors.GetByUsername(suiteCtx, "ghost")
			Expect(err).To(MatchError(auth.ErrNotFound))
		})

		It("only finds live reset tokens by email", func() {
			actor := newActor("bob")
			now := time.Now().UTC()
			Expect(repos.Actors.Update(suiteCtx, actor.ID, auth.ActorPatch{
				Reset: &auth.ResetToken{TokenHash: "h", ExpiresAt: now.Add(time.Minute)},
			})).To(Succeed())

			got, err := repos.Actors.GetByResetEmail(suiteCtx, "bob@example.com", now)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Reset).NotTo(BeNil())
			Expect(got.Reset.TokenHash).To(Equal("h"))

			_, err = repos.Actors.GetByResetEmail(suiteCtx, "bob@example.com", now.Add(time.Hour))
			Expect(err).To(MatchError(auth.ErrNotFound))
		})

		It("guards a reset update on the expected token hash", func() {
			actor := newActor("carol")
			Expect(repos.Actors.Update(suiteCtx, actor.ID, auth.ActorPatch{
				Reset: &auth.ResetToken{TokenHash: "current", ExpiresAt: time.Now().Add(time.Minute)},
			})).To(Succeed())

			newHash := "replaced"
			err := repos.Actors.Update(suiteCtx, actor.ID, auth.ActorPatch{
				PasswordHash: &newHash, ClearReset: true, IfResetHash: "stale",
			})
			Expect(err).To(MatchError(auth.ErrNotFound))

			Expect(repos.Actors.Update(suiteCtx, actor.ID, auth.ActorPatch{
				PasswordHash: &newHash, ClearReset: true, IfResetHash: "current",
			})).To(Succeed())

			got, err := repos.Actors.GetByID(suiteCtx, actor.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.PasswordHash).To(Equal("replaced"))
			Expect(got.Reset).To(BeNil())
		})
	})

	Describe("AttemptRepository", func() {
		It("counts by origin, actor and both within the window", func() {
			now := time.Now().UTC()
			insert := func(origin, actor string, at time.Time) {
				Expect(repos.Attempts.Insert(suiteCtx, &auth.AuthAttempt{
					ID: ulid.Make(), Origin: origin, Actor: actor, CreatedAt: at,
				})).To(Succeed())
			}
			insert("10.0.0.1", "alice", now)
			insert("10.0.0.1", "bob", now)
			insert("10.0.0.2", "alice", now)
			insert("10.0.0.1", "alice", now.Add(-2*time.Hour))

			counts, err := repos.Attempts.CountSince(suiteCtx, "10.0.0.1", "alice", now.Add(-time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(counts).To(Equal(auth.AttemptCounts{Origin: 2, Actor: 2, OriginActor: 1}))
		})
	})

	Describe("SessionRepository", func() {
		It("stores the key hash and finds the session by id", func() {
			actor := newActor("dave")
			session, err := auth.NewSession(actor.ID, "key-hash", time.Now().UTC())
			Expect(err).NotTo(HaveOccurred())
			Expect(repos.Sessions.Create(suiteCtx, session)).To(Succeed())

			got, err := repos.Sessions.GetByID(suiteCtx, session.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ActorID).To(Equal(actor.ID))
			Expect(got.KeyHash).To(Equal("key-hash"))
			Expect(got.Key).To(BeEmpty())
		})
	})

	Describe("Service over PostgreSQL", func() {
		var (
			svc  *auth.Service
			mail *outbox
		)

		BeforeEach(func() {
			mail = &outbox{}
			var err error
			svc, err = auth.NewService(repos.Dependencies(hasher, mail))
			Expect(err).NotTo(HaveOccurred())
		})

		It("logs in, authenticates the session and returns the account", func() {
			actor := newActor("erin")
			Expect(repos.Accounts.Create(suiteCtx, &auth.Account{
				ID: ulid.Make(), ActorID: actor.ID, Name: "Erin", CreatedAt: time.Now().UTC(),
			})).To(Succeed())

			result, err := svc.Login(suiteCtx, auth.LoginRequest{Origin: "127.0.0.1", Username: "Erin", Password: "hunter22"})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Account).NotTo(BeNil())
			Expect(result.Account.Name).To(Equal("Erin"))

			session, err := svc.Authenticate(suiteCtx, result.Session.ID, result.Session.Key)
			Expect(err).NotTo(HaveOccurred())
			Expect(session.ActorID).To(Equal(actor.ID))
		})

		It("rate limits after repeated failures", func() {
			newActor("frank")
			for range auth.DefaultMaxPerOriginActor {
				_, err := svc.Login(suiteCtx, auth.LoginRequest{Origin: "10.9.9.9", Username: "frank", Password: "wrong"})
				Expect(auth.KindOf(err)).To(Equal(auth.KindInvalidCredentials))
			}

			_, err := svc.Login(suiteCtx, auth.LoginRequest{Origin: "10.9.9.9", Username: "frank", Password: "hunter22"})
			Expect(auth.KindOf(err)).To(Equal(auth.KindRateLimit))
		})

		It("resets a password exactly once", func() {
			newActor("gina")
			_, err := svc.RequestPasswordReset(suiteCtx, "GINA@example.com")
			Expect(err).NotTo(HaveOccurred())
			key := mail.lastKey()

			_, err = svc.RedeemPasswordReset(suiteCtx, "gina@example.com", key, "new-secret")
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.RedeemPasswordReset(suiteCtx, "gina@example.com", key, "again")
			Expect(auth.KindOf(err)).To(Equal(auth.KindInvalidReset))

			_, err = svc.Login(suiteCtx, auth.LoginRequest{Origin: "127.0.0.1", Username: "gina", Password: "new-secret"})
			Expect(err).NotTo(HaveOccurred())
		})
	})
})
