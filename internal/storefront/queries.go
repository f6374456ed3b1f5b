package storefront

// Field selections shared by the product queries.
const (
	mediaFullFields = `
          mediaContentType
          previewImage { url }
          ... on MediaImage { id image { url } }
          ... on Video { id sources { url mimeType format } }
          ... on ExternalVideo { id embeddedUrl }`

	mediaSummaryFields = `
          mediaContentType
          previewImage { url }
          ... on MediaImage { id image { url } }`

	variantFields = `
          id
          title
          price { amount currencyCode }
          availableForSale
          selectedOptions { name value }`

	priceRangeFields = `
      priceRange { minVariantPrice { amount currencyCode } }`
)

const productFullFields = `
      id
      title
      description
      handle
      availableForSale` + priceRangeFields + `
      media(first: 10) { edges { node {` + mediaFullFields + `
      } } }
      variants(first: 10) { edges { node {` + variantFields + `
      } } }
      options { name values }`

const productSummaryFields = `
      id
      title
      handle
      availableForSale` + priceRangeFields + `
      media(first: 1) { edges { node {` + mediaSummaryFields + `
      } } }
      variants(first: 1) { edges { node {` + variantFields + `
      } } }`

const productsQuery = `query GetProducts($first: Int!, $query: String) {
  products(first: $first, query: $query) { edges { node {` + productFullFields + `
  } } }
}`

const productsSummaryQuery = `query GetProductsSummary($first: Int!, $query: String) {
  products(first: $first, query: $query) { edges { node {` + productSummaryFields + `
  } } }
}`

const collectionsQuery = `query GetCollections($first: Int!) {
  collections(first: $first) { edges { node { id title handle description image { url } } } }
}`

const productsByCollectionQuery = `query GetProductsByCollection($handle: String!, $first: Int!) {
  collection(handle: $handle) {
    id
    title
    handle
    description
    image { url }
    products(first: $first) { edges { node {` + productSummaryFields + `
    } } }
  }
}`

const productByHandleQuery = `query GetProductByHandle($handle: String!) {
  productByHandle(handle: $handle) {` + productFullFields + `
  }
}`

const collectionCountQuery = `query CountCollection($handle: String!, $first: Int!) {
  collection(handle: $handle) {
    title
    products(first: $first) { edges { node { id } } }
  }
}`

const cartCreateMutation = `mutation cartCreate($input: CartInput!) {
  cartCreate(input: $input) {
    cart {
      id
      checkoutUrl
      totalQuantity
      cost { totalAmount { amount currencyCode } }
    }
    userErrors { field message }
  }
}`
