package storage

import (
	"errors"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestStorage(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Storage Suite")
}

func behavesLikeKV(open func() KV) {
	var kv KV

	BeforeEach(func() {
		kv = open()
	})

	AfterEach(func() {
		if kv != nil {
			kv.Close()
		}
	})

	Describe("Get", func() {
		When("the key does not exist", func() {
			It("returns nil without an error", func() {
				value, err := kv.Get("missing")
				Expect(err).NotTo(HaveOccurred())
				Expect(value).To(BeNil())
			})
		})

		When("the key exists", func() {
			BeforeEach(func() {
				Expect(kv.Put(KeySettings, []byte(`{"provider":"gemini"}`))).To(Succeed())
			})

			It("returns the stored value", func() {
				value, err := kv.Get(KeySettings)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(value)).To(Equal(`{"provider":"gemini"}`))
			})
		})
	})

	Describe("Put", func() {
		It("replaces an existing value", func() {
			Expect(kv.Put(KeyHistory, []byte(`[1]`))).To(Succeed())
			Expect(kv.Put(KeyHistory, []byte(`[2]`))).To(Succeed())

			value, err := kv.Get(KeyHistory)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(value)).To(Equal(`[2]`))
		})
	})

	Describe("Update", func() {
		When("the key does not exist", func() {
			It("passes nil and stores the result", func() {
				var seen []byte
				err := kv.Update(KeyRateLimit, func(current []byte) ([]byte, error) {
					seen = current
					return []byte(`[1000]`), nil
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(seen).To(BeNil())

				value, _ := kv.Get(KeyRateLimit)
				Expect(string(value)).To(Equal(`[1000]`))
			})
		})

		When("the key exists", func() {
			BeforeEach(func() {
				Expect(kv.Put(KeyRateLimit, []byte(`[1000]`))).To(Succeed())
			})

			It("passes the current value", func() {
				var seen []byte
				err := kv.Update(KeyRateLimit, func(current []byte) ([]byte, error) {
					seen = current
					return []byte(`[1000,2000]`), nil
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(string(seen)).To(Equal(`[1000]`))

				value, _ := kv.Get(KeyRateLimit)
				Expect(string(value)).To(Equal(`[1000,2000]`))
			})

			It("leaves the value untouched when fn returns nil", func() {
				err := kv.Update(KeyRateLimit, func(current []byte) ([]byte, error) {
					return nil, nil
				})
				Expect(err).NotTo(HaveOccurred())

				value, _ := kv.Get(KeyRateLimit)
				Expect(string(value)).To(Equal(`[1000]`))
			})

			It("returns the error from fn and keeps the old value", func() {
				expectedErr := errors.New("boom")
				err := kv.Update(KeyRateLimit, func(current []byte) ([]byte, error) {
					return []byte(`[]`), expectedErr
				})
				Expect(err).To(MatchError(expectedErr))

				value, _ := kv.Get(KeyRateLimit)
				Expect(string(value)).To(Equal(`[1000]`))
			})
		})
	})
}

var _ = Describe("BoltKV", func() {
	behavesLikeKV(func() KV {
		kv, err := NewBoltKV(filepath.Join(GinkgoT().TempDir(), "test.db"))
		Expect(err).NotTo(HaveOccurred())
		return kv
	})

	It("persists values across reopen", func() {
		path := filepath.Join(GinkgoT().TempDir(), "reopen.db")
		kv, err := NewBoltKV(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(kv.Put(KeyHistory, []byte(`[]`))).To(Succeed())
		Expect(kv.Close()).To(Succeed())

		kv, err = NewBoltKV(path)
		Expect(err).NotTo(HaveOccurred())
		defer kv.Close()
		value, err := kv.Get(KeyHistory)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(value)).To(Equal(`[]`))
	})
})

var _ = Describe("SQLiteKV", func() {
	behavesLikeKV(func() KV {
		kv, err := NewSQLiteKV(filepath.Join(GinkgoT().TempDir(), "test.sqlite"))
		Expect(err).NotTo(HaveOccurred())
		return kv
	})
})

var _ = Describe("MemoryKV", func() {
	behavesLikeKV(func() KV {
		return NewMemoryKV()
	})
})

var _ = Describe("Open", func() {
	It("opens each backend", func() {
		dir := GinkgoT().TempDir()
		for _, backend := range []string{BackendBolt, BackendSQLite, BackendMemory} {
			kv, err := Open(backend, filepath.Join(dir, backend+".db"))
			Expect(err).NotTo(HaveOccurred())
			Expect(kv.Put(KeySettings, []byte(`{}`))).To(Succeed())
			Expect(kv.Close()).To(Succeed())
		}
	})

	It("rejects unknown backends", func() {
		_, err := Open("redis", "")
		Expect(err).To(MatchError(ContainSubstring("unknown store")))
	})
})
