package server_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/telnet2/go-practice/go-chat/citest/testutil"
)

var _ = Describe("Authentication", func() {
	It("rejects a duplicate username", func() {
		client, username := newLoggedInClient()
		defer client.Logout(ctx)

		other, err := testutil.NewTestClient(testServer.BaseURL)
		Expect(err).NotTo(HaveOccurred())
		status, _, err := other.Register(ctx, username, "different")
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(409))
	})

	It("rejects bad credentials", func() {
		client, username := newLoggedInClient()
		client.Logout(ctx)

		status, _, err := client.Login(ctx, username, "wrong")
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(401))
	})

	It("enforces a single live login per user", func() {
		client, username := newLoggedInClient()
		defer client.Logout(ctx)

		second, err := testutil.NewTestClient(testServer.BaseURL)
		Expect(err).NotTo(HaveOccurred())
		status, _, err := second.Login(ctx, username, "secret")
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(403))
	})

	It("allows login again after logout", func() {
		client, username := newLoggedInClient()

		status, _, err := client.Logout(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(200))

		status, _, err = client.Login(ctx, username, "secret")
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(200))
		client.Logout(ctx)
	})

	It("keeps chat endpoints behind authentication", func() {
		anon, err := testutil.NewTestClient(testServer.BaseURL)
		Expect(err).NotTo(HaveOccurred())

		status, _, err := anon.GetJSON(ctx, "/chat/sessions")
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(401))
	})
})
