package server_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Chat API", func() {
	It("creates a session and lists it in order", func() {
		client, _ := newLoggedInClient()
		defer client.Logout(ctx)

		first, err := client.SendNewSession(ctx, "hello", "1")
		Expect(err).NotTo(HaveOccurred())
		second, err := client.SendNewSession(ctx, "hello again", "1")
		Expect(err).NotTo(HaveOccurred())

		ids, err := client.Sessions(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(ids).To(Equal([]string{first, second}))
	})

	It("accepts a send into an existing session immediately", func() {
		client, _ := newLoggedInClient()
		defer client.Logout(ctx)

		sessionID, err := client.SendNewSession(ctx, "first", "1")
		Expect(err).NotTo(HaveOccurred())

		status, body, err := client.Send(ctx, sessionID, "second", "1")
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(200))
		Expect(body["success"]).To(BeTrue())
		Expect(body["message"]).To(Equal("AI processing started"))
	})

	It("returns 404 for a send into an unknown session", func() {
		client, _ := newLoggedInClient()
		defer client.Logout(ctx)

		status, _, err := client.Send(ctx, "no-such-session", "hi", "1")
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(404))
	})

	It("rejects an unknown model type", func() {
		client, _ := newLoggedInClient()
		defer client.Logout(ctx)

		status, _, err := client.PostJSON(ctx, "/chat/send-new-session", map[string]string{
			"message":   "hi",
			"modelType": "42",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(400))
	})

	It("serves a pending result through the long-poll fallback exactly once", func() {
		client, _ := newLoggedInClient()
		defer client.Logout(ctx)

		testServer.Registry.SetResult("poll-session", "answer via poll")

		status, body, err := client.GetResult(ctx, "poll-session")
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(200))
		Expect(body["success"]).To(BeTrue())
		Expect(body["result"]).To(Equal("answer via poll"))

		// The read consumed it.
		_, ok := testServer.Registry.GetResult("poll-session")
		Expect(ok).To(BeFalse())
	})

	It("evicts the least recently used session without losing the listing", func() {
		small, err := newSmallCacheServer()
		Expect(err).NotTo(HaveOccurred())
		defer small.Server.Close()

		client := small.Client
		var ids []string
		for i := 0; i < 4; i++ {
			id, err := client.SendNewSession(ctx, "hello", "1")
			Expect(err).NotTo(HaveOccurred())
			ids = append(ids, id)
		}

		// Capacity 3: at most three engines stay resident.
		Eventually(func() int {
			return small.Server.Registry.LiveSessions()
		}).Should(BeNumerically("<=", 3))

		// The index keeps all four sessions.
		listed, err := client.Sessions(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(listed).To(Equal(ids))

		// The evicted session still works; it reloads from the store.
		status, body, err := client.Send(ctx, ids[0], "are you back", "1")
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(200))
		Expect(body["success"]).To(BeTrue())
	})
})
