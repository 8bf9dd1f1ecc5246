package server_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/telnet2/go-practice/go-chat/citest/testutil"
)

var _ = Describe("SSE result streaming", func() {
	It("opens with a connected frame", func() {
		client, _ := newLoggedInClient()
		defer client.Logout(ctx)

		stream, err := testutil.OpenStream(ctx, client, "idle-session")
		Expect(err).NotTo(HaveOccurred())
		defer stream.Close()

		ev, err := stream.Next(2 * time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Type).To(Equal("connected"))
		Expect(ev.Data).To(ContainSubstring("idle-session"))
	})

	It("times out when no result arrives within the budget", func() {
		client, _ := newLoggedInClient()
		defer client.Logout(ctx)

		stream, err := testutil.OpenStream(ctx, client, "quiet-session")
		Expect(err).NotTo(HaveOccurred())
		defer stream.Close()

		ev, err := stream.WaitFor("timeout", 3*time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Data).To(ContainSubstring("timeout"))

		end, err := stream.Next(time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(end.Type).To(Equal("end"))
	})

	It("delivers a pushed result then ends the stream", func() {
		client, _ := newLoggedInClient()
		defer client.Logout(ctx)

		stream, err := testutil.OpenStream(ctx, client, "live-session")
		Expect(err).NotTo(HaveOccurred())
		defer stream.Close()

		_, err = stream.WaitFor("connected", 2*time.Second)
		Expect(err).NotTo(HaveOccurred())

		testServer.Registry.SetResult("live-session", "streamed answer")

		ev, err := stream.WaitFor("result", 2*time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Data).To(ContainSubstring("streamed answer"))

		end, err := stream.Next(time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(end.Type).To(Equal("end"))

		// Delivery consumed the pending result.
		_, ok := testServer.Registry.GetResult("live-session")
		Expect(ok).To(BeFalse())
	})

	It("picks up a result that landed before the stream attached", func() {
		client, _ := newLoggedInClient()
		defer client.Logout(ctx)

		testServer.Registry.SetResult("early-session", "stored early")

		stream, err := testutil.OpenStream(ctx, client, "early-session")
		Expect(err).NotTo(HaveOccurred())
		defer stream.Close()

		ev, err := stream.WaitFor("result", 2*time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Data).To(ContainSubstring("stored early"))
	})

	It("terminates a waiting stream with an error frame when the turn fails", func() {
		// No provider credentials are configured in the test
		// deployment, so a real send fails inside the bridge and the
		// failure must surface on the stream.
		client, _ := newLoggedInClient()
		defer client.Logout(ctx)

		sessionID, err := client.SendNewSession(ctx, "this will fail", "1")
		Expect(err).NotTo(HaveOccurred())

		stream, err := testutil.OpenStream(ctx, client, sessionID)
		Expect(err).NotTo(HaveOccurred())
		defer stream.Close()

		// Depending on whether the failure lands before or after the
		// stream attaches, the text arrives as an error frame or as a
		// stored result picked up on a tick. Either way the stream must
		// carry the failure and then end.
		var sawFailure bool
		for {
			ev, err := stream.Next(5 * time.Second)
			Expect(err).NotTo(HaveOccurred())
			if ev.Type == "error" || ev.Type == "result" {
				Expect(ev.Data).NotTo(BeEmpty())
				sawFailure = true
			}
			if ev.Type == "end" {
				break
			}
		}
		Expect(sawFailure).To(BeTrue())
	})
})
