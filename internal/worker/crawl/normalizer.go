package crawl

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"
	"github.com/hitoshi/pocketnews/internal/model"
	"github.com/hitoshi/pocketnews/internal/security"
)

// mediaExtensions はメディア系拡張の名前空間プレフィックス。
// feedによってmedia:contentまたはmedia:thumbnailで画像が提供される。
var mediaExtensionKeys = []string{"content", "thumbnail"}

// Normalizer はパース済みフィードエントリを正規化済み記事に変換する。
// I/Oは行わない。タイムスタンプのフォールバックを除き、
// 同一入力に対して常に同一のフィールド値を生成する。
type Normalizer struct {
	sanitizer       security.DescriptionSanitizerService
	defaultImageURL string
	now             func() time.Time
}

// NewNormalizer はNormalizerの新しいインスタンスを生成する。
func NewNormalizer(sanitizer security.DescriptionSanitizerService, defaultImageURL string) *Normalizer {
	return &Normalizer{
		sanitizer:       sanitizer,
		defaultImageURL: defaultImageURL,
		now:             time.Now,
	}
}

// Normalize は1エントリを正規化済みのArticleに変換する。
//
// 変換規則:
//   - タイトル: 必須。空または空白のみの場合はNormalizationError(missing_title)。
//   - URL: エントリのリンク。リンクがなくGUIDがURL形式の場合はGUIDで代用する。
//     それでも空の場合はNormalizationError(missing_url)。
//   - 説明文: サニタイズして格納（空でもよい）。
//   - 公開日時: gofeedがパースした公開日時、なければ更新日時、
//     どちらもなければ取り込み時刻で代用しDateEstimated=trueを立てる。
//   - 画像URL: 下記extractImageURLの優先順位で決定する。
func (n *Normalizer) Normalize(item *gofeed.Item, sourceName string) (*model.Article, error) {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return nil, &model.NormalizationError{Reason: model.NormalizeMissingTitle, Source: sourceName}
	}

	link := strings.TrimSpace(item.Link)
	if link == "" && isHTTPURL(item.GUID) {
		link = strings.TrimSpace(item.GUID)
	}
	if link == "" {
		return nil, &model.NormalizationError{Reason: model.NormalizeMissingURL, Source: sourceName}
	}

	ingestedAt := n.now()

	publishedAt := ingestedAt
	dateEstimated := true
	if item.PublishedParsed != nil {
		publishedAt = *item.PublishedParsed
		dateEstimated = false
	} else if item.UpdatedParsed != nil {
		publishedAt = *item.UpdatedParsed
		dateEstimated = false
	}

	return &model.Article{
		ID:            uuid.NewString(),
		Title:         title,
		Description:   n.sanitizer.Sanitize(item.Description),
		URL:           link,
		ImageURL:      n.extractImageURL(item),
		Source:        sourceName,
		PublishedAt:   publishedAt,
		DateEstimated: dateEstimated,
		CreatedAt:     ingestedAt,
	}, nil
}

// extractImageURL はエントリから記事画像のURLを決定する。
//
// 優先順位（最初に一致した規則のみ適用）:
//  1. 明示的なメディア参照: フィードのimage要素、またはmedia:content/media:thumbnail拡張
//  2. MIMEタイプがimage/で始まる最初のenclosure
//  3. 設定されたプレースホルダー画像
//
// 画像自体のフェッチは行わず、宣言されたURLのみを扱う。
func (n *Normalizer) extractImageURL(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}

	if media, ok := item.Extensions["media"]; ok {
		for _, key := range mediaExtensionKeys {
			for _, ext := range media[key] {
				if url := ext.Attrs["url"]; url != "" {
					return url
				}
			}
		}
	}

	for _, enc := range item.Enclosures {
		if enc == nil {
			continue
		}
		if strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return enc.URL
		}
	}

	return n.defaultImageURL
}

// isHTTPURL は文字列がhttpまたはhttpsのURLかを判定する。
func isHTTPURL(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
