package scanning

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func samplePNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("ContentTypeFromFilename", func() {
	DescribeTable("maps extensions",
		func(name, expected string) {
			Expect(ContentTypeFromFilename(name)).To(Equal(expected))
		},
		Entry("jpg", "bill.JPG", "image/jpeg"),
		Entry("jpeg", "bill.jpeg", "image/jpeg"),
		Entry("png", "scan.png", "image/png"),
		Entry("webp", "scan.webp", "image/webp"),
		Entry("pdf", "/tmp/october.pdf", "application/pdf"),
		Entry("heic", "IMG_0001.HEIC", "image/heic"),
		Entry("unknown", "notes.txt", "application/octet-stream"),
	)
})

var _ = Describe("DataURI", func() {
	var (
		data        []byte
		contentType string
		uri         string
		err         error
	)

	BeforeEach(func() {
		data = samplePNG()
		contentType = "image/png"
	})

	JustBeforeEach(func() {
		uri, err = DataURI(data, contentType)
	})

	When("the image is a PNG", func() {
		It("passes the bytes through", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(uri).To(Equal("data:image/png;base64," + base64.StdEncoding.EncodeToString(data)))
		})
	})

	When("the content type is not one the providers read", func() {
		BeforeEach(func() {
			contentType = "image/x-bitmap"
		})

		It("converts the image to PNG", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(uri).To(HavePrefix("data:image/png;base64,"))
		})
	})

	When("the image cannot be decoded", func() {
		BeforeEach(func() {
			data = []byte("definitely not an image")
			contentType = "image/tiff"
		})

		It("returns an error", func() {
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("unsupported image format"))
		})
	})

	It("round-trips through splitDataURI", func() {
		mimeType, decoded, err := splitDataURI(uri)
		Expect(err).NotTo(HaveOccurred())
		Expect(mimeType).To(Equal("image/png"))
		Expect(decoded).To(Equal(data))
	})
})

var _ = Describe("splitDataURI", func() {
	It("rejects plain base64", func() {
		_, _, err := splitDataURI(base64.StdEncoding.EncodeToString([]byte("x")))
		Expect(err).To(HaveOccurred())
	})

	It("rejects URIs that are not base64 encoded", func() {
		_, _, err := splitDataURI("data:text/plain,hello")
		Expect(err).To(HaveOccurred())
	})

	It("rejects a corrupt payload", func() {
		_, _, err := splitDataURI("data:image/png;base64," + strings.Repeat("!", 8))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("isHEICFormat", func() {
	It("recognizes the ftyp brand", func() {
		header := append([]byte{0, 0, 0, 24}, []byte("ftypheic0000")...)
		Expect(isHEICFormat(header)).To(BeTrue())
	})

	It("ignores other files", func() {
		Expect(isHEICFormat(samplePNG())).To(BeFalse())
	})
})
